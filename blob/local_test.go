package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedStore(t *testing.T) *LocalStore {
	t.Helper()
	s := NewLocalStore(t.TempDir())
	s.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestLocalStore_PutDateLayout(t *testing.T) {
	s := fixedStore(t)

	loc, err := s.Put(context.Background(), "attachments/Attmtreceivedu1_m1_a.pdf", []byte("bytes"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	want := filepath.Join("2026", "03", "14", "attachments", "Attmtreceivedu1_m1_a.pdf")
	if filepath.Base(filepath.Dir(loc)) != "attachments" || !filepath.IsAbs(loc) {
		t.Errorf("location = %q", loc)
	}
	data, err := os.ReadFile(filepath.Join(s.base, want))
	if err != nil {
		t.Fatalf("blob not at expected path: %v", err)
	}
	if string(data) != "bytes" {
		t.Fatalf("blob content = %q", data)
	}
}

func TestLocalStore_PutIsIdempotent(t *testing.T) {
	s := fixedStore(t)
	ctx := context.Background()

	loc1, err := s.Put(ctx, "received_u1_m1.pdf", []byte("first"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	loc2, err := s.Put(ctx, "received_u1_m1.pdf", []byte("second"))
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if loc1 != loc2 {
		t.Fatalf("locations differ: %q vs %q", loc1, loc2)
	}
	data, err := os.ReadFile(loc1)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("content = %q, the first write must win", data)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s := fixedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Put(ctx, "x", []byte("y")); err == nil {
		t.Fatal("Put() with cancelled context expected error")
	}
}
