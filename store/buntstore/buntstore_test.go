package buntstore_test

import (
	"sync"
	"testing"

	"github.com/seedboxsh/rssbox/store"
	"github.com/seedboxsh/rssbox/store/buntstore"
)

type doc struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

func openTestStore(t *testing.T) *buntstore.Store {
	t.Helper()
	s, err := buntstore.Open("")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetUpdateDelete(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Insert(store.Downloads, "d1", &doc{ID: "d1", Status: "PENDING"}, ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var got doc
	if err := s.Get(store.Downloads, "d1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "PENDING" {
		t.Errorf("Status = %q, want PENDING", got.Status)
	}

	got.Status = "PROCESSING"
	if err := s.UpdateOne(store.Downloads, "d1", &got); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	var reread doc
	if err := s.Get(store.Downloads, "d1", &reread); err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if reread.Status != "PROCESSING" {
		t.Errorf("Status after update = %q, want PROCESSING", reread.Status)
	}

	if err := s.DeleteOne(store.Downloads, "d1"); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	if err := s.Get(store.Downloads, "d1", &doc{}); err != store.ErrNotFound {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	var out doc
	if err := s.Get(store.Accounts, "missing", &out); err != store.ErrNotFound {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestUpdateOneMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateOne(store.Accounts, "missing", &doc{ID: "missing"}); err != store.ErrNotFound {
		t.Errorf("UpdateOne(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteOneMissingIsNoError(t *testing.T) {
	s := openTestStore(t)
	if err := s.DeleteOne(store.Accounts, "missing"); err != nil {
		t.Errorf("DeleteOne(missing) = %v, want nil", err)
	}
}

func TestInsertUniqueIndexConflict(t *testing.T) {
	s := openTestStore(t)
	type withURL struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if _, err := s.Insert(store.Downloads, "d1", &withURL{ID: "d1", URL: "magnet:?xt=1"}, "url"); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	existingID, err := s.Insert(store.Downloads, "d2", &withURL{ID: "d2", URL: "magnet:?xt=1"}, "url")
	if err != store.ErrConflict {
		t.Fatalf("second Insert err = %v, want ErrConflict", err)
	}
	if existingID != "d1" {
		t.Errorf("existingID = %q, want d1", existingID)
	}

	var out withURL
	if err := s.Get(store.Downloads, "d2", &out); err != store.ErrNotFound {
		t.Errorf("colliding insert should not have written d2, got %v", err)
	}
}

func TestFindOneAndUpdateOrdering(t *testing.T) {
	s := openTestStore(t)
	for _, a := range []doc{
		{ID: "a1", Status: "IDLE", Priority: 1},
		{ID: "a2", Status: "IDLE", Priority: 5},
		{ID: "a3", Status: "IDLE", Priority: 3},
	} {
		a := a
		if _, err := s.Insert(store.Accounts, a.ID, &a, ""); err != nil {
			t.Fatalf("Insert %s: %v", a.ID, err)
		}
	}

	filter := store.FieldEquals("status", "IDLE")
	less := store.ByField("priority", true)
	update := func(body map[string]interface{}) { body["status"] = "PROCESSING" }

	var out doc
	if err := s.FindOneAndUpdate(store.Accounts, filter, less, update, &out); err != nil {
		t.Fatalf("FindOneAndUpdate: %v", err)
	}
	if out.ID != "a2" {
		t.Errorf("claimed %q, want a2 (highest priority)", out.ID)
	}

	var remaining []doc
	if err := s.Find(store.Accounts, store.FieldEquals("status", "IDLE"), &remaining); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d accounts still IDLE, want 2", len(remaining))
	}
}

func TestFindOneAndUpdateNoMatchReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	filter := store.FieldEquals("status", "IDLE")
	update := func(body map[string]interface{}) {}
	var out doc
	if err := s.FindOneAndUpdate(store.Accounts, filter, nil, update, &out); err != store.ErrNotFound {
		t.Errorf("FindOneAndUpdate on empty collection = %v, want ErrNotFound", err)
	}
}

// TestFindOneAndUpdateIsAtomic is the linearisability property the whole
// claim protocol depends on (spec §4.1): N concurrent claimants against one
// matching document must see exactly one winner.
func TestFindOneAndUpdateIsAtomic(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(store.Downloads, "d1", &doc{ID: "d1", Status: "PENDING"}, ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const workers = 32
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			filter := store.FieldEquals("status", "PENDING")
			update := func(body map[string]interface{}) { body["status"] = "PROCESSING" }
			var out doc
			err := s.FindOneAndUpdate(store.Downloads, filter, nil, update, &out)
			wins[i] = err == nil
		}()
	}
	wg.Wait()

	winCount := 0
	for _, w := range wins {
		if w {
			winCount++
		}
	}
	if winCount != 1 {
		t.Errorf("%d of %d claimants won, want exactly 1", winCount, workers)
	}
}

func TestDeleteMany(t *testing.T) {
	s := openTestStore(t)
	for _, d := range []doc{
		{ID: "d1", Status: "ERROR"},
		{ID: "d2", Status: "PENDING"},
		{ID: "d3", Status: "ERROR"},
	} {
		d := d
		if _, err := s.Insert(store.Downloads, d.ID, &d, ""); err != nil {
			t.Fatalf("Insert %s: %v", d.ID, err)
		}
	}
	n, err := s.DeleteMany(store.Downloads, store.FieldEquals("status", "ERROR"))
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	var remaining []doc
	if err := s.Find(store.Downloads, nil, &remaining); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "d2" {
		t.Errorf("remaining = %+v, want only d2", remaining)
	}
}
