package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsNotError(t *testing.T) {
	u, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing blob should not error: %v", err)
	}
	if u.Known() {
		t.Fatalf("expected unknown identity, got %+v", u)
	}
}

func TestLoadBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte(`{"user_id":" u-77 ","name":"Asha"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	u, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.ID != "u-77" || u.Name != "Asha" {
		t.Fatalf("unexpected identity: %+v", u)
	}
	if !u.Known() {
		t.Fatalf("identity should be known")
	}
}

func TestLoadMalformedBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
