package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDocumentLenientDecoding(t *testing.T) {
	t.Parallel()

	var doc Document
	if err := json.Unmarshal([]byte(`{"_id":"d1","space":"ts","modifiedOn":"1700000000000","content":"hi"}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.ID != "d1" || doc.Class != ClassDocument || doc.DisplayName != DefaultName {
		t.Fatalf("unexpected defaults: %+v", doc)
	}
	if doc.ModifiedOn != 1700000000000 {
		t.Fatalf("expected string timestamp to coerce, got %d", doc.ModifiedOn)
	}

	var named Document
	_ = json.Unmarshal([]byte(`{"name":"Fallback"}`), &named)
	if named.DisplayName != "Fallback" || named.ID != "" {
		t.Fatalf("unexpected name fallback: %+v", named)
	}
	var titled Document
	_ = json.Unmarshal([]byte(`{"title":"Title","name":"Name"}`), &titled)
	if titled.DisplayName != "Title" {
		t.Fatalf("title should win over name: %+v", titled)
	}
}

func TestRecordRejectsNonObject(t *testing.T) {
	t.Parallel()

	var doc Document
	if err := json.Unmarshal([]byte(`"text"`), &doc); err == nil {
		t.Fatal("expected error for non-object document")
	}
}

func TestTeamspaceWithoutDescription(t *testing.T) {
	t.Parallel()

	var ts Teamspace
	if err := json.Unmarshal([]byte(`{"_id":"t1","name":"Eng","archived":false,"members":["a",1,"b"]}`), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ts.Description != "" || ts.Name != "Eng" || ts.Class != ClassTeamspace {
		t.Fatalf("unexpected teamspace %+v", ts)
	}
	if len(ts.Members) != 2 {
		t.Fatalf("expected non-string members to be skipped, got %v", ts.Members)
	}
}

func TestIssuePriorityClamp(t *testing.T) {
	t.Parallel()

	var issue Issue
	if err := json.Unmarshal([]byte(`{"identifier":"ENG-4","number":4.0,"priority":9,"attachedTo":"tracker:ids:NoParent"}`), &issue); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if issue.Priority != PriorityNoPriority || issue.Number != 4 || issue.Title != DefaultName {
		t.Fatalf("unexpected issue %+v", issue)
	}
	if issue.AttachedTo != IssueNoParent {
		t.Fatalf("expected attachedTo to decode, got %q", issue.AttachedTo)
	}
}

func TestBlobRefShapes(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`"blob-1"`, `{"id":"blob-1"}`, `{"blobId":"blob-1"}`, `{"_id":"blob-1"}`} {
		var ref BlobRef
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if ref.ID != "blob-1" {
			t.Fatalf("%s: unexpected id %q", raw, ref.ID)
		}
	}
}

func TestIsBlobReference(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"d1-content-1700000000000":             true,
		"0b5e8a5c-3f1d-4f5e-9d44-7e6f2d1c9a10": true,
		"plain words here":                     false,
		"see d1-content-17 for details":        false,
		"":                                     false,
		"short":                                false,
		"release-content-notes":                false,
		"d1-content-17":                        false,
		"-content-1700000000000":               false,
		"d1-content-1700000000000x":            false,
		"a-content-b-content-1700000000000":    true,
	}
	for in, want := range cases {
		if got := IsBlobReference(in); got != want {
			t.Fatalf("IsBlobReference(%q)=%v want %v", in, got, want)
		}
	}
	name := BlobContentName("d1", time.UnixMilli(1700000000000))
	if name != "d1-content-1700000000000" || !IsBlobReference(name) {
		t.Fatalf("BlobContentName = %q", name)
	}
}

func TestErrorObjectShapes(t *testing.T) {
	t.Parallel()

	var e ErrorObject
	if err := json.Unmarshal([]byte(`{"code":404,"params":{"message":"nope"}}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Code != "404" || e.Message != "nope" {
		t.Fatalf("unexpected error object %+v", e)
	}
	var status ErrorObject
	_ = json.Unmarshal([]byte(`{"severity":"ERROR","code":"platform:status:Forbidden","params":{}}`), &status)
	if status.Code != "platform:status:Forbidden" || status.Severity != "ERROR" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestSocketResponseIDs(t *testing.T) {
	t.Parallel()

	var r SocketResponse
	if err := json.Unmarshal([]byte(`{"id":-1,"result":"hello"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.ID == nil || *r.ID != HelloRequestID {
		t.Fatalf("unexpected id %v", r.ID)
	}
	var noID SocketResponse
	_ = json.Unmarshal([]byte(`{"result":{}}`), &noID)
	if noID.ID != nil {
		t.Fatal("expected nil id")
	}
	var strID SocketResponse
	_ = json.Unmarshal([]byte(`{"id":"7"}`), &strID)
	if strID.ID == nil || *strID.ID != 7 {
		t.Fatal("expected string id to parse")
	}
}
