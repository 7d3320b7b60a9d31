package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// portUnderTest exercises the Port contract shared by all backends.
func portUnderTest(t *testing.T, p Port) {
	t.Helper()
	ctx := context.Background()

	// Absent key.
	_, ok, err := p.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get missing key failed: %v", err)
	}
	if ok {
		t.Error("expected absent key to report ok=false")
	}

	// Set then read-your-write.
	if err := p.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	blob, ok, err := p.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get after Set failed: ok=%v err=%v", ok, err)
	}
	if string(blob) != "v1" {
		t.Errorf("expected v1, got %q", blob)
	}

	// Overwrite.
	if err := p.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	blob, _, _ = p.Get(ctx, "k")
	if string(blob) != "v2" {
		t.Errorf("expected v2 after overwrite, got %q", blob)
	}

	// Delete, including an absent key.
	if err := p.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := p.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting an absent key must not error: %v", err)
	}
	_, ok, _ = p.Get(ctx, "k")
	if ok {
		t.Error("expected key gone after delete")
	}
}

func TestMemoryPort(t *testing.T) {
	portUnderTest(t, NewMemoryPort())
}

func TestMemoryPortClosed(t *testing.T) {
	p := NewMemoryPort()
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Set(context.Background(), "k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryPortCopiesBlobs(t *testing.T) {
	p := NewMemoryPort()
	ctx := context.Background()

	in := []byte("original")
	if err := p.Set(ctx, "k", in); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	in[0] = 'X'

	out, _, err := p.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(out) != "original" {
		t.Errorf("stored blob must be isolated from the caller's slice, got %q", out)
	}
	out[0] = 'Y'

	again, _, _ := p.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("returned blob must be isolated too, got %q", again)
	}
}

func TestSQLitePort(t *testing.T) {
	p, err := NewSQLitePort(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLitePort failed: %v", err)
	}
	defer p.Close()

	portUnderTest(t, p)
}

func TestSQLitePortSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	p, err := NewSQLitePort(dbPath)
	if err != nil {
		t.Fatalf("NewSQLitePort failed: %v", err)
	}
	if err := p.Set(ctx, "goal/snapshot", []byte(`{"queue":[]}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLitePort(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	blob, ok, err := reopened.Get(ctx, "goal/snapshot")
	if err != nil || !ok {
		t.Fatalf("Get after reopen failed: ok=%v err=%v", ok, err)
	}
	if string(blob) != `{"queue":[]}` {
		t.Errorf("expected the persisted blob back, got %q", blob)
	}
}
