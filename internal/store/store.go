package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/dares/internal/model"
)

// ErrNotFound is returned when no snapshot exists for an entity
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists the latest stage output of every entity
type SnapshotStore interface {
	Save(ctx context.Context, rec *model.EntityRecord) error
	Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error)
	Delete(ctx context.Context, entityType, id string) error
	List(ctx context.Context, entityType string) ([]string, error)
	Close() error
}

// Open returns the snapshot store selected by cfg. An empty path stores
// under the project folder.
func Open(cfg model.StoreConfig, projectDir string) (SnapshotStore, error) {
	path := cfg.Path
	if path == "" {
		path = projectDir
	}
	switch cfg.Backend {
	case "", "disk":
		return NewDiskStore(path), nil
	case "badger":
		return OpenBadgerStore(filepath.Join(path, "entity_db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// DiskStore keeps one JSON document per entity under entity_data/{type}/{id}.json
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) path(entityType, id string) string {
	return filepath.Join(s.dir, "entity_data", entityType, id+".json")
}

// Save overwrites the entity's snapshot atomically
func (s *DiskStore) Save(ctx context.Context, rec *model.EntityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	return WriteFileAtomic(s.path(rec.Type, rec.ID), data)
}

// Load reads the entity's snapshot
func (s *DiskStore) Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(entityType, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec model.EntityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", entityType, id, err)
	}
	return &rec, nil
}

// Delete removes the entity's snapshot; a missing snapshot is not an error
func (s *DiskStore) Delete(ctx context.Context, entityType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(entityType, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the ids with a snapshot for entityType, sorted
func (s *DiskStore) List(ctx context.Context, entityType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, "entity_data", entityType))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op
func (s *DiskStore) Close() error {
	return nil
}

// SaveRelationNames writes the property-to-relation mapping of the run
func SaveRelationNames(projectDir string, names map[string]model.RelationSchema) error {
	data, err := json.MarshalIndent(names, "", "    ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(projectDir, "relation_names.json"), data)
}

// WriteFileAtomic replaces path with data via a temporary file and rename
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
