// Package buntstore implements store.Store over github.com/tidwall/buntdb,
// the same embedded KV engine the teacher codebase (aistore's dbdriver
// package) uses for its local job/config persistence. buntdb serialises all
// Update transactions behind a single writer lock, which is exactly the
// linearisability FindOneAndUpdate requires (spec §4.1) - the whole
// scan-filter-update-write sequence for a claim runs inside one such
// transaction.
package buntstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/seedboxsh/rssbox/internal/cmn"
	"github.com/seedboxsh/rssbox/store"
)

const (
	autoShrinkSize = 1 << 20 // 1MiB, mirrors the teacher's dbdriver sizing
	collectionSep  = "##"
	indexSep       = "@@"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the buntdb-backed store.Store implementation.
type Store struct {
	db *buntdb.DB
}

var _ store.Store = (*Store)(nil)

// Open creates or reopens the database at path. An empty path uses an
// in-memory database (":memory:"), handy for tests and the fake-store
// scenarios of spec §8.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("buntstore: open %q: %w", path, err)
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSize,
		AutoShrinkPercentage: 50,
	})
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func docKey(collection, id string) string {
	return collection + collectionSep + id
}

func indexKey(collection, field, value string) string {
	return collection + indexSep + field + collectionSep + value
}

func collectionPrefix(collection string) string {
	return collection + collectionSep
}

func toErr(err error) error {
	if err == buntdb.ErrNotFound {
		return store.ErrNotFound
	}
	return err
}

// ttlOptions peeks at a document's expire_at field (spec §4.1/§4.4:
// Download.expire_at on terminal transitions) and, when present, turns it
// into buntdb's own TTL mechanism, so terminal Download records purge
// themselves without a separate sweep. A doc with no expire_at (or one
// cleared back to nil, e.g. by MarkAsPending) gets nil options, which wipes
// any TTL a previous version of the key carried.
func ttlOptions(raw []byte) (*buntdb.SetOptions, error) {
	var peek struct {
		ExpireAt *time.Time `json:"expire_at"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, err
	}
	if peek.ExpireAt == nil {
		return nil, nil
	}
	ttl := time.Until(*peek.ExpireAt)
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	return &buntdb.SetOptions{Expires: true, TTL: ttl}, nil
}

// Insert writes body under collection/id. When uniqueOn is non-empty, a
// secondary index key is written in the same transaction; a pre-existing
// index entry means the insert is absorbed (spec P7 - idempotent ingest).
func (s *Store) Insert(collection, id string, body interface{}, uniqueOn string) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("buntstore: marshal %s/%s: %w", collection, id, err)
	}

	var decoded map[string]interface{}
	if uniqueOn != "" {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("buntstore: decode for unique index: %w", err)
		}
	}

	var existingID string
	err = s.db.Update(func(tx *buntdb.Tx) error {
		if uniqueOn != "" {
			value, _ := decoded[uniqueOn].(string)
			ik := indexKey(collection, uniqueOn, value)
			if prevID, getErr := tx.Get(ik); getErr == nil {
				// The index entry is only stale if the document it points
				// to has itself been TTL-purged (spec §4.1) - otherwise
				// this is a genuine duplicate, absorbed per P7.
				if _, docErr := tx.Get(docKey(collection, prevID)); docErr == nil {
					existingID = prevID
					return nil
				}
				if _, delErr := tx.Delete(ik); delErr != nil && delErr != buntdb.ErrNotFound {
					return delErr
				}
			}
			if _, _, setErr := tx.Set(ik, id, nil); setErr != nil {
				return setErr
			}
		}
		opts, ttlErr := ttlOptions(raw)
		if ttlErr != nil {
			return ttlErr
		}
		_, _, err := tx.Set(docKey(collection, id), string(raw), opts)
		return err
	})
	if err != nil {
		return "", toErr(err)
	}
	if existingID != "" {
		return existingID, store.ErrConflict
	}
	return id, nil
}

func (s *Store) Get(collection, id string, out interface{}) error {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(docKey(collection, id))
		if getErr != nil {
			return getErr
		}
		raw = v
		return nil
	})
	if err != nil {
		return toErr(err)
	}
	return json.Unmarshal([]byte(raw), out)
}

func (s *Store) UpdateOne(collection, id string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("buntstore: marshal %s/%s: %w", collection, id, err)
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		key := docKey(collection, id)
		if _, getErr := tx.Get(key); getErr != nil {
			return getErr
		}
		opts, ttlErr := ttlOptions(raw)
		if ttlErr != nil {
			return ttlErr
		}
		_, _, setErr := tx.Set(key, string(raw), opts)
		return setErr
	})
	return toErr(err)
}

func (s *Store) DeleteOne(collection, id string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, delErr := tx.Delete(docKey(collection, id))
		return delErr
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

func (s *Store) DeleteMany(collection string, filter store.Filter) (int, error) {
	var deleted int
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		walkErr := ascendCollection(tx, collection, func(key string, body map[string]interface{}) bool {
			if filter == nil || filter(body) {
				keys = append(keys, key)
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
		for _, k := range keys {
			if _, delErr := tx.Delete(k); delErr != nil && delErr != buntdb.ErrNotFound {
				return delErr
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// FindOneAndUpdate is the claim primitive. Every candidate in collection is
// decoded and filtered inside a single Update transaction; candidates are
// ranked with less (when non-nil) and the first ranked match is mutated and
// written back before the transaction commits.
func (s *Store) FindOneAndUpdate(collection string, filter store.Filter, less store.Less, update store.Update, out interface{}) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		type candidate struct {
			key  string
			body map[string]interface{}
		}
		var candidates []candidate
		walkErr := ascendCollection(tx, collection, func(key string, body map[string]interface{}) bool {
			if filter == nil || filter(body) {
				candidates = append(candidates, candidate{key: key, body: body})
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
		if len(candidates) == 0 {
			return buntdb.ErrNotFound
		}
		if less != nil {
			sort.SliceStable(candidates, func(i, j int) bool {
				return less(candidates[i].body, candidates[j].body)
			})
		}
		chosen := candidates[0]
		if update != nil {
			update(chosen.body)
		}
		raw, marshalErr := json.Marshal(chosen.body)
		if marshalErr != nil {
			return marshalErr
		}
		opts, ttlErr := ttlOptions(raw)
		if ttlErr != nil {
			return ttlErr
		}
		if _, _, setErr := tx.Set(chosen.key, string(raw), opts); setErr != nil {
			return setErr
		}
		if out != nil {
			return json.Unmarshal(raw, out)
		}
		return nil
	})
	return toErr(err)
}

func (s *Store) Find(collection string, filter store.Filter, out interface{}) error {
	var raws []string
	err := s.db.View(func(tx *buntdb.Tx) error {
		return ascendCollection(tx, collection, func(_ string, body map[string]interface{}) bool {
			if filter == nil || filter(body) {
				raw, marshalErr := json.Marshal(body)
				if marshalErr == nil {
					raws = append(raws, raw2str(raw))
				}
			}
			return true
		})
	})
	if err != nil {
		return err
	}
	arr := "[" + strings.Join(raws, ",") + "]"
	return json.Unmarshal([]byte(arr), out)
}

func raw2str(b []byte) string { return string(b) }

// ascendCollection iterates every document key in collection (skipping its
// secondary-index keys, which live under a different separator) and decodes
// each into a map for filter evaluation.
func ascendCollection(tx *buntdb.Tx, collection string, fn func(key string, body map[string]interface{}) bool) error {
	prefix := collectionPrefix(collection)
	var iterErr error
	tx.AscendKeys(prefix+"*", func(key, value string) bool {
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(value), &body); err != nil {
			iterErr = err
			return false
		}
		cmn.Assert(body != nil)
		return fn(key, body)
	})
	return iterErr
}
