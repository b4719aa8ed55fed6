package fsblob_test

import (
	"context"
	"testing"

	"github.com/MrWong99/memoira/internal/store"
	"github.com/MrWong99/memoira/internal/store/fsblob"
	"github.com/MrWong99/memoira/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	t.Parallel()
	storetest.RunBlobStore(t, func(t *testing.T) store.BlobStore {
		s, err := fsblob.New(t.TempDir())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	s, err := fsblob.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../outside.wav", "/etc/passwd", "a/../../b"} {
		if err := s.Put(context.Background(), key, "audio/wav", []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestNew_EmptyRoot(t *testing.T) {
	t.Parallel()
	if _, err := fsblob.New(""); err == nil {
		t.Fatal("expected error for empty root")
	}
}
