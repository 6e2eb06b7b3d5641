package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/ppiankov/dares/internal/model"
)

// BadgerStore keeps snapshots in an embedded badger database under keys
// entity/{type}/{id}
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database at dir. An empty dir opens
// an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func entityKey(entityType, id string) []byte {
	return []byte("entity/" + entityType + "/" + id)
}

// Save overwrites the entity's snapshot
func (s *BadgerStore) Save(ctx context.Context, rec *model.EntityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityKey(rec.Type, rec.ID), data)
	})
}

// Load reads the entity's snapshot
func (s *BadgerStore) Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec model.EntityRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(entityType, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", entityType, id, err)
	}
	return &rec, nil
}

// Delete removes the entity's snapshot
func (s *BadgerStore) Delete(ctx context.Context, entityType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entityKey(entityType, id))
	})
}

// List returns the ids with a snapshot for entityType, sorted
func (s *BadgerStore) List(ctx context.Context, entityType string) ([]string, error) {
	prefix := entityKey(entityType, "")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close flushes and closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
