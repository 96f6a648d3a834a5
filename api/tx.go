package api

import "pkt.systems/hulybridge/internal/ids"

// Tx is a normalized transaction record. Exactly three implementations exist:
// *TxCreateDoc, *TxUpdateDoc and *TxRemoveDoc.
type Tx interface {
	// TxID is the record's own identity.
	TxID() Ref
	// TxClass is the record's class tag.
	TxClass() Class
	// Target names the document the transaction mutates.
	Target() TxTarget
	isTx()
}

// TxTarget identifies the document a transaction applies to.
type TxTarget struct {
	// ObjectID is the mutated document.
	ObjectID Ref `json:"objectId"`
	// ObjectClass is the mutated document's class.
	ObjectClass Class `json:"objectClass"`
	// ObjectSpace is the space owning the mutated document.
	ObjectSpace Ref `json:"objectSpace"`
}

// CollectionRef attaches a document to a parent collection.
type CollectionRef struct {
	// AttachedTo is the parent document.
	AttachedTo Ref `json:"attachedTo,omitempty"`
	// AttachedToClass is the parent document's class.
	AttachedToClass Class `json:"attachedToClass,omitempty"`
	// Collection is the parent attribute holding the attached documents.
	Collection string `json:"collection,omitempty"`
}

// IsZero reports whether no collection is set.
func (c CollectionRef) IsZero() bool {
	return c.AttachedTo == "" && c.AttachedToClass == "" && c.Collection == ""
}

// TxHeader carries the fields common to every transaction record.
type TxHeader struct {
	// ID is a fresh identifier for this record.
	ID Ref `json:"_id"`
	// Class is one of ClassTxCreateDoc, ClassTxUpdateDoc or ClassTxRemoveDoc.
	Class Class `json:"_class"`
	// Space is always SpaceTx.
	Space Ref `json:"space"`
	TxTarget
	// ModifiedOn is when the record was built.
	ModifiedOn Timestamp `json:"modifiedOn"`
	// ModifiedBy is the account submitting the transaction.
	ModifiedBy Ref `json:"modifiedBy"`
}

// TxID implements Tx.
func (h TxHeader) TxID() Ref { return h.ID }

// TxClass implements Tx.
func (h TxHeader) TxClass() Class { return h.Class }

// Target implements Tx.
func (h TxHeader) Target() TxTarget { return h.TxTarget }

// TxCreateDoc creates a document.
type TxCreateDoc struct {
	TxHeader
	CollectionRef
	// CreatedBy is the creating account.
	CreatedBy Ref `json:"createdBy"`
	// CreatedOn equals ModifiedOn for new documents.
	CreatedOn Timestamp `json:"createdOn"`
	// Attributes holds the new document's attributes.
	Attributes Attributes `json:"attributes"`
}

// TxUpdateDoc applies a partial patch. Operations may use the platform's
// $inc, $push and $pull operators.
type TxUpdateDoc struct {
	TxHeader
	CollectionRef
	// Operations is the patch.
	Operations Attributes `json:"operations"`
	// Retrieve asks the server to return the updated document.
	Retrieve bool `json:"retrieve,omitempty"`
}

// TxRemoveDoc removes a document.
type TxRemoveDoc struct {
	TxHeader
	CollectionRef
}

func (*TxCreateDoc) isTx() {}
func (*TxUpdateDoc) isTx() {}
func (*TxRemoveDoc) isTx() {}

// TxMeta names the target and author of a transaction about to be built.
type TxMeta struct {
	TxTarget
	// ModifiedBy is the submitting account. It is also used as createdBy.
	ModifiedBy Ref
	// Collection is set for documents attached to a parent collection.
	Collection CollectionRef
}

func newHeader(class Class, meta TxMeta) TxHeader {
	return TxHeader{
		ID:         Ref(ids.NewRef()),
		Class:      class,
		Space:      SpaceTx,
		TxTarget:   meta.TxTarget,
		ModifiedOn: Now(),
		ModifiedBy: meta.ModifiedBy,
	}
}

// NewCreateDoc builds a create record. attrs is deep-copied.
func NewCreateDoc(meta TxMeta, attrs Attributes) *TxCreateDoc {
	h := newHeader(ClassTxCreateDoc, meta)
	if attrs == nil {
		attrs = Attributes{}
	}
	return &TxCreateDoc{
		TxHeader:      h,
		CollectionRef: meta.Collection,
		CreatedBy:     meta.ModifiedBy,
		CreatedOn:     h.ModifiedOn,
		Attributes:    attrs.Clone(),
	}
}

// NewUpdateDoc builds an update record. ops is deep-copied.
func NewUpdateDoc(meta TxMeta, ops Attributes) *TxUpdateDoc {
	if ops == nil {
		ops = Attributes{}
	}
	return &TxUpdateDoc{
		TxHeader:      newHeader(ClassTxUpdateDoc, meta),
		CollectionRef: meta.Collection,
		Operations:    ops.Clone(),
	}
}

// NewRemoveDoc builds a remove record.
func NewRemoveDoc(meta TxMeta) *TxRemoveDoc {
	return &TxRemoveDoc{
		TxHeader:      newHeader(ClassTxRemoveDoc, meta),
		CollectionRef: meta.Collection,
	}
}
