package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dares/internal/extract"
	"github.com/ppiankov/dares/internal/fetch"
	"github.com/ppiankov/dares/internal/model"
	"github.com/ppiankov/dares/internal/store"
	"github.com/ppiankov/dares/internal/wikidata"
)

type snak map[string]any

func entityClaim(pid, id string) snak {
	return snak{"mainsnak": map[string]any{
		"snaktype": "value", "property": pid,
		"datavalue": map[string]any{"type": "wikibase-entityid", "value": map[string]any{"entity-type": "item", "id": id}},
	}, "rank": "normal"}
}

func timeClaim(pid, value string, precision int) snak {
	return snak{"mainsnak": map[string]any{
		"snaktype": "value", "property": pid,
		"datavalue": map[string]any{"type": "time", "value": map[string]any{"time": value, "precision": precision}},
	}, "rank": "normal"}
}

func noValueClaim(pid string) snak {
	return snak{"mainsnak": map[string]any{"snaktype": "novalue", "property": pid}, "rank": "normal"}
}

// item describes a fake Wikidata entity
type item struct {
	labels  map[string]string
	aliases map[string][]string
	claims  map[string][]snak
	article string // enwiki page name, "" for none
}

type fakeSources struct {
	srv      *httptest.Server
	items    map[string]item
	articles map[string]string
}

func (f *fakeSources) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id, ok := strings.CutPrefix(r.URL.Path, "/wiki/Special:EntityData/"); ok {
		id = strings.TrimSuffix(id, ".json")
		it, ok := f.items[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.document(id, it))
		return
	}
	if page, ok := strings.CutPrefix(r.URL.Path, "/wiki/"); ok {
		body, ok := f.articles[page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
		return
	}
	http.NotFound(w, r)
}

func (f *fakeSources) document(id string, it item) map[string]any {
	labels := map[string]any{}
	for lang, v := range it.labels {
		labels[lang] = map[string]string{"language": lang, "value": v}
	}
	aliases := map[string]any{}
	for lang, vs := range it.aliases {
		var list []map[string]string
		for _, v := range vs {
			list = append(list, map[string]string{"language": lang, "value": v})
		}
		aliases[lang] = list
	}
	sitelinks := map[string]any{}
	if it.article != "" {
		sitelinks["enwiki"] = map[string]string{
			"site": "enwiki", "title": it.article, "url": f.srv.URL + "/wiki/" + it.article,
		}
	}
	claims := map[string]any{}
	for pid, c := range it.claims {
		claims[pid] = c
	}
	return map[string]any{"entities": map[string]any{id: map[string]any{
		"id": id, "labels": labels, "aliases": aliases, "claims": claims, "sitelinks": sitelinks,
	}}}
}

func newFakeSources(t *testing.T) *fakeSources {
	t.Helper()
	f := &fakeSources{
		items: map[string]item{
			"Q1": {
				labels:  map[string]string{"en": "Victor Hugo"},
				aliases: map[string][]string{"en": {"Hugo"}},
				claims: map[string][]snak{
					"P19":  {entityClaim("P19", "Q90"), entityClaim("P19", "Q404"), entityClaim("P19", "Q90")},
					"P27":  {noValueClaim("P27")},
					"P569": {timeClaim("P569", "+1802-02-26T00:00:00Z", 11)},
				},
				article: "Victor_Hugo",
			},
			"Q2": {labels: map[string]string{"en": "No Article"}},
			"Q3": {labels: map[string]string{"de": "Namenlos"}, article: "Nameless"},
			"Q5": {
				labels:  map[string]string{"en": "Nobody"},
				claims:  map[string][]snak{"P19": {entityClaim("P19", "Q90")}},
				article: "Nobody",
			},
			"Q90": {labels: map[string]string{"en": "Paris"}},
		},
		articles: map[string]string{
			"Victor_Hugo": "<p>Victor Hugo was born in Besançon on February 26, 1802. He died in Paris.</p><p>He wrote novels.</p>",
			"Nameless":    "<p>Some text.</p>",
			"Nobody":      "<p>Nothing relevant here.</p>",
		},
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func humanSchema() []model.EntityType {
	return []model.EntityType{{
		Type:  "Q5",
		Label: "human",
		Relations: map[string]model.RelationSchema{
			"P19":  {Label: "placeOfBirth", Source: "Person", Target: "Location"},
			"P20":  {Label: "placeOfDeath", Source: "Person", Target: "Location"},
			"P27":  {Label: "citizenship", Source: "Person", Target: "Country"},
			"P569": {Label: "dateOfBirth", Source: "Person", Target: "Date"},
		},
	}}
}

func newEnricher(t *testing.T, f *fakeSources, snapshots store.SnapshotStore, mutate func(*Options)) (*Enricher, *test.Hook) {
	t.Helper()
	fetcher := fetch.New(fetch.Options{Timeout: 5 * time.Second, UserAgent: "dares-test"})
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts := Options{
		Language:         "en",
		FallbackLanguage: "fr",
		Workers:          3,
		ScoreCutoff:      90,
		KeepUnmatched:    false,
		Negative:         model.NegativeConfig{Enabled: true},
		Entities:         humanSchema(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(Sources{
		Graph:     wikidata.NewClient(fetcher, f.srv.URL),
		Documents: fetcher,
		Annotator: extract.NewRuleSplitter(),
		Store:     snapshots,
	}, opts, logger)
	require.NoError(t, err)
	return e, hook
}

func TestEnricher_Run(t *testing.T) {
	f := newFakeSources(t)
	snapshots := store.NewDiskStore(t.TempDir())
	e, hook := newEnricher(t, f, snapshots, nil)

	res := e.Run(context.Background(), "Q5", []string{"Q1", "Q2", "Q3", "Q4", "Q5"})

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, "Q1", rec.ID)
	assert.Equal(t, "Q5", rec.Type)
	assert.Equal(t, []string{"Victor Hugo", "Hugo"}, rec.Labels)
	assert.Equal(t, f.srv.URL+"/wiki/Victor_Hugo", rec.Source.URL)
	assert.Equal(t, []string{
		"Victor Hugo was born in Besançon on February 26, 1802.",
		"He died in Paris.",
		"He wrote novels.",
	}, rec.Source.Sentences)

	require.Len(t, rec.Properties, 4)
	byID := map[string]model.PropertyAssertion{}
	for _, p := range rec.Properties {
		byID[p.PropertyID] = p
	}
	assert.Equal(t, []string{"P19", "P27", "P569", model.Other}, []string{
		rec.Properties[0].PropertyID, rec.Properties[1].PropertyID, rec.Properties[2].PropertyID, rec.Properties[3].PropertyID,
	})

	assert.Equal(t, []model.TypedValue{model.EntityRef("Q90", []string{"Paris"})}, byID["P19"].Values)
	assert.Equal(t, []model.LabeledExample{{
		Relation: "placeOfBirth", Sentence: "He died in Paris.", Source: model.NoMatch,
		SourceRole: "Person", Target: "Paris", TargetRole: "Location",
	}}, byID["P19"].Examples)

	assert.Empty(t, byID["P27"].Values, "a property whose claims carry no value still yields an assertion")
	assert.Empty(t, byID["P27"].Examples)

	assert.Equal(t, []model.TypedValue{model.Time("February 26, 1802")}, byID["P569"].Values)
	require.Len(t, byID["P569"].Examples, 1)
	assert.Equal(t, "Victor Hugo", byID["P569"].Examples[0].Source)

	other := byID[model.Other]
	require.Len(t, other.Examples, 1)
	assert.Equal(t, "He wrote novels.", other.Examples[0].Sentence)

	reasons := map[string]model.DropReason{}
	stages := map[string]string{}
	for _, d := range res.Drops {
		reasons[d.ID] = d.Reason
		stages[d.ID] = d.Stage
	}
	assert.Equal(t, map[string]model.DropReason{
		"Q2": model.DropNoSourceDocument,
		"Q3": model.DropNoLabel,
		"Q4": model.DropFetchFailed,
		"Q5": model.DropNoMatch,
	}, reasons)
	assert.Equal(t, "fetch_graph", stages["Q4"])
	assert.Equal(t, "fetch_source", stages["Q2"])
	assert.Equal(t, "resolve_labels", stages["Q3"])
	assert.Equal(t, "align", stages["Q5"])

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
			assert.Contains(t, entry.Data, "reason")
		}
	}
	assert.Equal(t, 4, warnings)
}

func TestEnricher_Snapshots(t *testing.T) {
	f := newFakeSources(t)
	snapshots := store.NewDiskStore(t.TempDir())
	e, _ := newEnricher(t, f, snapshots, nil)
	ctx := context.Background()

	res := e.Run(ctx, "Q5", []string{"Q1", "Q5"})
	require.Len(t, res.Records, 1)

	saved, err := snapshots.Load(ctx, "Q5", "Q1")
	require.NoError(t, err)
	assert.Equal(t, res.Records[0].Properties, saved.Properties)

	_, err = snapshots.Load(ctx, "Q5", "Q5")
	assert.True(t, errors.Is(err, store.ErrNotFound), "snapshot of a dropped entity is removed")

	ids, err := snapshots.List(ctx, "Q5")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1"}, ids)
}

type crashingAnnotator struct{}

func (crashingAnnotator) Sentences(context.Context, []string) ([]string, error) {
	panic("annotator crashed")
}

// flakyStore fails every Save after the first okSaves
type flakyStore struct {
	store.SnapshotStore
	okSaves int32
	saves   atomic.Int32
}

func (s *flakyStore) Save(ctx context.Context, rec *model.EntityRecord) error {
	if s.saves.Add(1) > s.okSaves {
		return errors.New("disk full")
	}
	return s.SnapshotStore.Save(ctx, rec)
}

func TestEnricher_PanicRemovesSnapshot(t *testing.T) {
	f := newFakeSources(t)
	snapshots := store.NewDiskStore(t.TempDir())
	e, _ := newEnricher(t, f, snapshots, nil)
	e.src.Annotator = crashingAnnotator{}
	ctx := context.Background()

	res := e.Run(ctx, "Q5", []string{"Q1"})
	require.Len(t, res.Drops, 1)
	assert.Equal(t, "fetch_source", res.Drops[0].Stage)
	assert.Equal(t, model.DropInternal, res.Drops[0].Reason)
	assert.Contains(t, res.Drops[0].Error, "annotator crashed")

	_, err := snapshots.Load(ctx, "Q5", "Q1")
	assert.True(t, errors.Is(err, store.ErrNotFound), "snapshot saved by the first stage is removed")
}

func TestEnricher_FailedSaveRemovesSnapshot(t *testing.T) {
	f := newFakeSources(t)
	disk := store.NewDiskStore(t.TempDir())
	e, _ := newEnricher(t, f, &flakyStore{SnapshotStore: disk, okSaves: 1}, nil)
	ctx := context.Background()

	res := e.Run(ctx, "Q5", []string{"Q1"})
	require.Empty(t, res.Records)
	require.Len(t, res.Drops, 1)
	assert.Equal(t, "fetch_source", res.Drops[0].Stage)
	assert.Equal(t, model.DropInternal, res.Drops[0].Reason)

	_, err := disk.Load(ctx, "Q5", "Q1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestEnricher_CancelledRunRemovesSnapshots(t *testing.T) {
	f := newFakeSources(t)
	snapshots := store.NewDiskStore(t.TempDir())
	e, _ := newEnricher(t, f, snapshots, nil)
	require.NoError(t, snapshots.Save(context.Background(), &model.EntityRecord{ID: "Q1", Type: "Q5"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Run(ctx, "Q5", []string{"Q1", "Q5"})
	assert.Empty(t, res.Records)
	require.Len(t, res.Drops, 2)
	for _, d := range res.Drops {
		assert.Equal(t, model.DropInternal, d.Reason, d.ID)
	}

	ids, err := snapshots.List(context.Background(), "Q5")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEnricher_KeepUnmatched(t *testing.T) {
	f := newFakeSources(t)
	e, _ := newEnricher(t, f, store.NewDiskStore(t.TempDir()), func(o *Options) {
		o.KeepUnmatched = true
		o.Negative = model.NegativeConfig{}
	})

	res := e.Run(context.Background(), "Q5", []string{"Q5", "Q1"})
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Q5", res.Records[0].ID, "batch order is preserved")
	assert.Equal(t, "Q1", res.Records[1].ID)
	assert.Equal(t, 0, res.Records[0].ExampleCount())
	for _, p := range res.Records[1].Properties {
		assert.NotEqual(t, model.Other, p.PropertyID)
	}
}

func TestEnricher_ExamplesAreDocumentSentences(t *testing.T) {
	f := newFakeSources(t)
	e, _ := newEnricher(t, f, store.NewDiskStore(t.TempDir()), func(o *Options) { o.KeepUnmatched = true })

	res := e.Run(context.Background(), "Q5", []string{"Q1", "Q5"})
	require.NotEmpty(t, res.Records)
	for _, rec := range res.Records {
		doc := map[string]bool{}
		for _, s := range rec.Source.Sentences {
			doc[s] = true
		}
		for _, p := range rec.Properties {
			for _, ex := range p.Examples {
				assert.True(t, doc[ex.Sentence], "%s: %q", rec.ID, ex.Sentence)
			}
		}
	}
}

func TestEnricher_FallbackLabel(t *testing.T) {
	f := newFakeSources(t)
	f.items["Q3"] = item{labels: map[string]string{"fr": "Sans nom"}, article: "Nameless"}
	e, _ := newEnricher(t, f, store.NewDiskStore(t.TempDir()), func(o *Options) { o.KeepUnmatched = true })

	res := e.Run(context.Background(), "Q5", []string{"Q3"})
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Sans nom"}, res.Records[0].Labels)
}

func TestNew_ConflictingNegativePolicy(t *testing.T) {
	_, err := New(Sources{
		Graph:     wikidata.NewClient(fetch.New(fetch.Options{}), "http://localhost"),
		Documents: fetch.New(fetch.Options{}),
		Annotator: extract.NewRuleSplitter(),
		Store:     store.NewDiskStore(t.TempDir()),
	}, Options{Negative: model.NegativeConfig{Enabled: true, MaxSize: 5, Balance: true}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflictingNegativePolicy))
}

func TestNew_MissingSource(t *testing.T) {
	_, err := New(Sources{}, Options{}, nil)
	assert.Error(t, err)
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		value     string
		precision int
		lang      string
		want      string
	}{
		{"+0044-00-00T00:00:00Z", 9, "en", "44"},
		{"-0250-00-00T00:00:00Z", 9, "en", "-250"},
		{"+2001-00-00T00:00:00Z", 0, "en", "2001"},
		{"+1952-03-00T00:00:00Z", 10, "en", "1952"},
		{"+1952-03-11T00:00:00Z", 9, "en", "1952"},
		{"+1952-03-11T00:00:00Z", 11, "en", "March 11, 1952"},
		{"+1952-03-11T00:00:00Z", 0, "en", "March 11, 1952"},
		{"+1952-03-11T00:00:00Z", 11, "fr", "11 mars 1952"},
		{"+1952-03-11T00:00:00Z", 11, "de", "11. März 1952"},
		{"+1952-03-11T00:00:00Z", 11, "xx", "March 11, 1952"},
		{"-0044-03-15T00:00:00Z", 11, "en", "-44"},
		{"+0044-03-15T00:00:00Z", 11, "en", "March 15, 44"},
		{"+0800-12-25T00:00:00Z", 11, "fr", "25 décembre 800"},
		{"+1000-01-01T00:00:00Z", 11, "en", "January 1, 1000"},
		{"+0000-00-00T00:00:00Z", 9, "en", "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTime(tt.value, tt.precision, tt.lang), "%s/%d/%s", tt.value, tt.precision, tt.lang)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want model.DropReason
	}{
		{fmt.Errorf("%w: x", ErrNoLabel), model.DropNoLabel},
		{fmt.Errorf("%w: x", ErrNoSourceDocument), model.DropNoSourceDocument},
		{ErrNoMatch, model.DropNoMatch},
		{fmt.Errorf("%w: boom", ErrFetchFailed), model.DropFetchFailed},
		{&fetch.StatusError{Code: 500}, model.DropFetchFailed},
		{fmt.Errorf("wrap: %w", wikidata.ErrEntityMissing), model.DropFetchFailed},
		{fmt.Errorf("%w: %w", ErrFetchFailed, context.Canceled), model.DropInternal},
		{errors.New("unexpected"), model.DropInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), tt.err.Error())
	}
}
