package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedRejectTexts(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, kind := range []string{
		"NotYourTurn", "IllegalPhase", "InvalidTarget", "InsufficientResource", "StaleAction",
		"RoomFull", "DeckInvalid", "AlreadyInMatch", "ConnectionLost",
	} {
		if !c.Has("reject." + kind) {
			t.Errorf("missing reject.%s", kind)
		}
	}
	got := c.Reject("InsufficientResource", "costs 3, have 1")
	if got != "Not enough resource: costs 3, have 1" {
		t.Fatalf("Reject = %q", got)
	}
	if got := c.Reject("Mystery", "x"); got != "Mystery: x" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestFinishTexts(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Finish("alice", "concede"); got != "alice wins by concession." {
		t.Fatalf("Finish = %q", got)
	}
	if got := c.Finish("", "life"); !strings.Contains(got, "draw") {
		t.Fatalf("draw = %q", got)
	}
	if got := c.Finish("", "aborted"); !strings.Contains(got, "aborted") {
		t.Fatalf("aborted = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("reject:\n  RoomFull: \"full!\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Reject("RoomFull", ""); got != "full!" {
		t.Fatalf("override = %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("reject:\n  RoomFull: \"again\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatal("duplicate override keys accepted")
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render("room.closed", map[string]any{}); err == nil {
		t.Fatal("missing template data accepted")
	}
	if _, err := c.Render("nope", nil); err == nil {
		t.Fatal("unknown key accepted")
	}
}
