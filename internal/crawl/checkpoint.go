package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ppiankov/dares/internal/model"
)

// ErrCrawlInProgress is returned when another process holds a type's crawl lock
var ErrCrawlInProgress = errors.New("crawl already in progress")

// CheckpointStore persists crawl checkpoints
type CheckpointStore interface {
	// Load returns the checkpoint of entityType, empty when none exists
	Load(ctx context.Context, entityType string) (model.CrawlCheckpoint, error)
	Save(ctx context.Context, cp model.CrawlCheckpoint) error
	// Lock grants exclusive crawl ownership of entityType until unlock is called
	Lock(entityType string) (unlock func(), err error)
}

// FileCheckpointStore keeps checkpoints and identifier lists as JSON files
// under the project folder
type FileCheckpointStore struct {
	dir string
}

// NewFileCheckpointStore creates a store rooted at the project folder
func NewFileCheckpointStore(projectDir string) *FileCheckpointStore {
	return &FileCheckpointStore{dir: projectDir}
}

func (s *FileCheckpointStore) checkpointPath(entityType string) string {
	return filepath.Join(s.dir, "whatlinkshere", entityType+"-whatlinkshere.json")
}

func (s *FileCheckpointStore) linksPath(entityType string) string {
	return filepath.Join(s.dir, "wikidata_links", entityType+".json")
}

// Load implements CheckpointStore
func (s *FileCheckpointStore) Load(_ context.Context, entityType string) (model.CrawlCheckpoint, error) {
	cp := model.CrawlCheckpoint{EntityType: entityType}
	if err := readJSON(s.checkpointPath(entityType), &cp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.CrawlCheckpoint{EntityType: entityType}, nil
		}
		return cp, fmt.Errorf("load checkpoint %s: %w", entityType, err)
	}
	cp.EntityType = entityType
	return cp, nil
}

// Save implements CheckpointStore
func (s *FileCheckpointStore) Save(_ context.Context, cp model.CrawlCheckpoint) error {
	if err := writeJSON(s.checkpointPath(cp.EntityType), cp); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.EntityType, err)
	}
	return nil
}

// Lock implements CheckpointStore with an advisory file lock
func (s *FileCheckpointStore) Lock(entityType string) (func(), error) {
	path := s.checkpointPath(entityType) + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring crawl lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", entityType, ErrCrawlInProgress)
	}
	return func() { _ = lock.Unlock() }, nil
}

// SaveLinks writes the identifier list of a type
func (s *FileCheckpointStore) SaveLinks(links model.EntityLinks) error {
	if err := writeJSON(s.linksPath(links.EntityType), links); err != nil {
		return fmt.Errorf("save links %s: %w", links.EntityType, err)
	}
	return nil
}

// LoadLinks reads the identifier list of a type
func (s *FileCheckpointStore) LoadLinks(entityType string) (model.EntityLinks, error) {
	var links model.EntityLinks
	if err := readJSON(s.linksPath(entityType), &links); err != nil {
		return links, fmt.Errorf("load links %s: %w", entityType, err)
	}
	links.EntityType = entityType
	return links, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
