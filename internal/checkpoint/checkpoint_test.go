package checkpoint_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/testutil"
)

func TestPutAndLatest(t *testing.T) {
	store := testutil.TestCheckpointDB(t)

	if err := store.Put("http://store", "nb", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("http://store", "nb", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	doc, created, err := store.Latest("http://store", "nb")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(doc, []byte("v2")) {
		t.Errorf("latest = %q, want v2", doc)
	}
	if created.IsZero() {
		t.Error("created_at not recorded")
	}
}

func TestLatestNotFound(t *testing.T) {
	store := testutil.TestCheckpointDB(t)
	if _, _, err := store.Latest("http://store", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotsAreScopedToIdentity(t *testing.T) {
	store := testutil.TestCheckpointDB(t)
	if err := store.Put("http://a", "nb", []byte("from-a")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("http://b", "nb", []byte("from-b")); err != nil {
		t.Fatal(err)
	}

	doc, _, err := store.Latest("http://a", "nb")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != "from-a" {
		t.Errorf("latest for a = %q", doc)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := testutil.TestCheckpointDB(t)
	for _, v := range []string{"v1", "v2", "v3"} {
		if err := store.Put("http://store", "nb", []byte(v)); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := store.List("http://store", "nb", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 {
		t.Fatalf("len = %d, want 2", len(snaps))
	}
	if snaps[0].ID <= snaps[1].ID {
		t.Errorf("not newest first: %d then %d", snaps[0].ID, snaps[1].ID)
	}
	if snaps[0].Size != 2 {
		t.Errorf("size = %d, want 2", snaps[0].Size)
	}
}

func TestPrune(t *testing.T) {
	store := testutil.TestCheckpointDB(t)
	for i := 0; i < 5; i++ {
		if err := store.Put("http://store", "nb", []byte{byte('a' + i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Put("http://store", "other", []byte("keep")); err != nil {
		t.Fatal(err)
	}

	if err := store.Prune("http://store", "nb", 2); err != nil {
		t.Fatal(err)
	}

	snaps, err := store.List("http://store", "nb", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 {
		t.Fatalf("kept = %d, want 2", len(snaps))
	}
	doc, _, err := store.Latest("http://store", "nb")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != "e" {
		t.Errorf("latest after prune = %q, want e", doc)
	}

	// Other notebooks are untouched.
	if _, _, err := store.Latest("http://store", "other"); err != nil {
		t.Errorf("prune touched another notebook: %v", err)
	}
}
