package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"sloppy/internal/config"
	"sloppy/internal/content"
)

// MustOpenStore opens a content.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *content.Store {
	t.Helper()

	store, err := content.Open(cfg)
	if err != nil {
		t.Fatalf("content.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// PutItem stores an item in the given state without going through the
// registry. Transient states get a pending job record of the matching kind.
func PutItem(t testing.TB, store *content.Store, state content.State) *content.Item {
	t.Helper()

	ctx := context.Background()
	item := &content.Item{ID: uuid.NewString(), Prompt: "test prompt", State: state}
	if state != content.StateDrafting {
		item.Draft = "a draft"
	}
	if state == content.StateRendered || state == content.StatePublishing || state == content.StatePublished {
		item.MediaRefs = []string{"media/" + item.ID + ".mp4"}
	}
	if state == content.StatePublished {
		item.PublishRef = "https://example.invalid/" + item.ID
	}
	if kind, ok := content.KindForState(state); ok {
		item.ActiveJobID = uuid.NewString()
		job := &content.JobRecord{JobID: item.ActiveJobID, ItemID: item.ID, Kind: kind}
		if err := store.InsertWithJob(ctx, item, job); err != nil {
			t.Fatalf("store.InsertWithJob: %v", err)
		}
		return item
	}
	if err := store.Put(ctx, item); err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return item
}
