package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dares/internal/model"
)

func sampleRecord(id string) *model.EntityRecord {
	return &model.EntityRecord{
		ID:     id,
		Type:   "Q5",
		Labels: []string{"Douglas Adams"},
		Source: model.SourceDocument{
			URL:       "https://en.wikipedia.org/wiki/Douglas_Adams",
			Sentences: []string{"Adams was born in Cambridge."},
		},
		Properties: []model.PropertyAssertion{{
			PropertyID:    "P19",
			RelationLabel: "placeOfBirth",
			Values:        []model.TypedValue{model.EntityRef("Q350", []string{"Cambridge"})},
			Examples:      []model.LabeledExample{},
		}},
	}
}

func backends(t *testing.T) map[string]SnapshotStore {
	t.Helper()
	b, err := OpenBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]SnapshotStore{
		"disk":   NewDiskStore(t.TempDir()),
		"badger": b,
	}
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := sampleRecord("Q42")
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Load(ctx, "Q5", "Q42")
			require.NoError(t, err)
			assert.Equal(t, rec, got)

			rec.Labels = append(rec.Labels, "Adams")
			require.NoError(t, s.Save(ctx, rec))
			got, err = s.Load(ctx, "Q5", "Q42")
			require.NoError(t, err)
			assert.Equal(t, []string{"Douglas Adams", "Adams"}, got.Labels)
		})
	}
}

func TestSnapshotStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "Q5", "Q1")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.Save(ctx, sampleRecord("Q1")))
			require.NoError(t, s.Delete(ctx, "Q5", "Q1"))
			_, err = s.Load(ctx, "Q5", "Q1")
			assert.True(t, errors.Is(err, ErrNotFound))

			assert.NoError(t, s.Delete(ctx, "Q5", "Q1"))
		})
	}
}

func TestSnapshotStore_List(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"Q7", "Q42", "Q1"} {
				require.NoError(t, s.Save(ctx, sampleRecord(id)))
			}
			other := sampleRecord("Q90")
			other.Type = "Q515"
			require.NoError(t, s.Save(ctx, other))

			ids, err := s.List(ctx, "Q5")
			require.NoError(t, err)
			assert.Equal(t, []string{"Q1", "Q42", "Q7"}, ids)

			ids, err = s.List(ctx, "Q6256")
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestDiskStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir)
	require.NoError(t, s.Save(context.Background(), sampleRecord("Q42")))

	data, err := os.ReadFile(filepath.Join(dir, "entity_data", "Q5", "Q42.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Q42", doc["id"])
	assert.Contains(t, doc, "wikipedia")
	assert.Contains(t, doc, "properties")
}

func TestDiskStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewDiskStore(t.TempDir())
	assert.ErrorIs(t, s.Save(ctx, sampleRecord("Q42")), context.Canceled)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(model.StoreConfig{}, dir)
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, s)

	s, err = Open(model.StoreConfig{Backend: "badger"}, dir)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())
	assert.DirExists(t, filepath.Join(dir, "entity_db"))

	_, err = Open(model.StoreConfig{Backend: "postgres"}, dir)
	assert.Error(t, err)
}

func TestSaveRelationNames(t *testing.T) {
	dir := t.TempDir()
	names := map[string]model.RelationSchema{
		"P19": {Label: "placeOfBirth", Source: "Person", Target: "Location"},
	}
	require.NoError(t, SaveRelationNames(dir, names))

	data, err := os.ReadFile(filepath.Join(dir, "relation_names.json"))
	require.NoError(t, err)
	var got map[string]model.RelationSchema
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, names, got)
}
