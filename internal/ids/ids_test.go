package ids_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"pkt.systems/hulybridge/internal/ids"
)

func TestNewRefIsUniqueXID(t *testing.T) {
	t.Parallel()

	a := ids.NewRef()
	b := ids.NewRef()
	if a == b {
		t.Fatal("expected unique refs on subsequent calls")
	}
	if _, err := xid.FromString(a); err != nil {
		t.Fatalf("xid.FromString(%q): %v", a, err)
	}
}

func TestNewSessionIDParsesAsUUIDv7(t *testing.T) {
	t.Parallel()

	raw := ids.NewSessionID()
	parsed, err := uuid.Parse(raw)
	if err != nil {
		t.Fatalf("uuid.Parse: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestIsUUID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"0b5e8a5c-3f1d-4f5e-9d44-7e6f2d1c9a10": true,
		ids.NewSessionID():                     true,
		"not-a-uuid":                           false,
		"":                                     false,
		ids.NewRef():                           false,
	}
	for in, want := range cases {
		if got := ids.IsUUID(in); got != want {
			t.Fatalf("IsUUID(%q)=%v want %v", in, got, want)
		}
	}
}
