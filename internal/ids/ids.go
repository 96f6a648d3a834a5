// Package ids generates the identifiers hulybridge puts on the wire.
package ids

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewRef returns a fresh document or transaction identifier. xid values are
// 20 lowercase characters, sortable by creation time and safe inside URLs.
func NewRef() string {
	return xid.New().String()
}

// NewSessionID returns a time-ordered UUIDv7 used to tag a socket session.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewOperationID returns an identifier used to correlate log lines that
// belong to a single client operation.
func NewOperationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsUUID reports whether s parses as a UUID of any version.
func IsUUID(s string) bool {
	if len(s) != 36 && len(s) != 32 && len(s) != 38 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
