package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dares/internal/model"
)

func loadEntity(t *testing.T) *Entity {
	t.Helper()
	raw, err := os.ReadFile("testdata/Q90.json")
	require.NoError(t, err)
	e, err := ParseDocument(raw, "Q90")
	require.NoError(t, err)
	return e
}

func TestEntity_Labels(t *testing.T) {
	e := loadEntity(t)

	labels, ok := e.Labels("en", "en")
	require.True(t, ok)
	assert.Equal(t, []string{"Paris", "City of Light", "Paris, France"}, labels)

	// French label exists, French aliases do not
	labels, ok = e.Labels("fr", "en")
	require.True(t, ok)
	assert.Equal(t, []string{"Paris"}, labels)
}

func TestEntity_LabelsFallback(t *testing.T) {
	e := &Entity{
		LabelMap: objMap[LangValue]{"en": {Language: "en", Value: "Douglas Adams"}},
		AliasMap: objMap[[]LangValue]{"de": {{Language: "de", Value: "DNA"}}},
	}

	labels, ok := e.Labels("de", "en")
	require.True(t, ok)
	assert.Equal(t, []string{"Douglas Adams", "DNA"}, labels, "aliases stay in the configured language")

	_, ok = e.Labels("ja", "ko")
	assert.False(t, ok)
}

func TestEntity_Sitelink(t *testing.T) {
	e := loadEntity(t)

	u, ok := e.Sitelink("en")
	require.True(t, ok)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", u)

	u, ok = e.Sitelink("fr")
	require.True(t, ok)
	assert.Equal(t, "https://fr.wikipedia.org/wiki/Paris", u)

	_, ok = e.Sitelink("de")
	assert.False(t, ok)
}

func TestSnak_Value(t *testing.T) {
	e := loadEntity(t)

	value := func(pid string) (RawValue, error) {
		st, ok := e.Claims(pid)
		require.True(t, ok, pid)
		return st[0].MainSnak.Value()
	}

	v, err := value("P17")
	require.NoError(t, err)
	assert.Equal(t, RawValue{Kind: model.KindEntity, EntityID: "Q142"}, v)

	v, err = value("P571")
	require.NoError(t, err)
	assert.Equal(t, model.KindTime, v.Kind)
	assert.Equal(t, "-0250-00-00T00:00:00Z", v.Time)
	assert.Equal(t, 9, v.Precision)

	v, err = value("P1082")
	require.NoError(t, err)
	assert.Equal(t, "+2145906", v.Amount)

	v, err = value("P395")
	require.NoError(t, err)
	assert.Equal(t, RawValue{Kind: model.KindString, Text: "75"}, v)

	_, err = value("P1448")
	assert.True(t, errors.Is(err, ErrUnsupportedValue))

	_, err = value("P6")
	assert.True(t, errors.Is(err, ErrNoValue))

	_, ok := e.Claims("P19")
	assert.False(t, ok)
}

func TestParseDocument_EmptyCollectionsAsArrays(t *testing.T) {
	raw := []byte(`{"entities":{"Q1":{"id":"Q1","labels":[],"aliases":[],"claims":[],"sitelinks":[]}}}`)
	e, err := ParseDocument(raw, "Q1")
	require.NoError(t, err)
	_, ok := e.Labels("en", "en")
	assert.False(t, ok)
	_, ok = e.Sitelink("en")
	assert.False(t, ok)
}

func TestParseDocument_Redirect(t *testing.T) {
	raw := []byte(`{"entities":{"Q2":{"id":"Q2","labels":{"en":{"language":"en","value":"Earth"}}}}}`)
	e, err := ParseDocument(raw, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "Q2", e.ID)

	_, err = ParseDocument([]byte(`{"entities":{}}`), "Q1")
	assert.True(t, errors.Is(err, ErrEntityMissing))
}

type stubGetter struct {
	docs map[string]string
	urls []string
}

func (s *stubGetter) GetJSON(_ context.Context, url string, v any) error {
	s.urls = append(s.urls, url)
	body, ok := s.docs[url]
	if !ok {
		return fmt.Errorf("unexpected status: 404 Not Found (%s)", url)
	}
	return json.Unmarshal([]byte(body), v)
}

func TestClient_Entity(t *testing.T) {
	raw, err := os.ReadFile("testdata/Q90.json")
	require.NoError(t, err)

	getter := &stubGetter{docs: map[string]string{
		"https://www.wikidata.org/wiki/Special:EntityData/Q90.json": string(raw),
	}}
	c := NewClient(getter, "https://www.wikidata.org/")

	e, doc, err := c.Entity(context.Background(), "Q90")
	require.NoError(t, err)
	assert.Equal(t, "Q90", e.ID)
	assert.JSONEq(t, string(raw), string(doc))

	labels, ok, err := c.Labels(context.Background(), "Q90", "en", "en")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Paris", labels[0])

	_, _, err = c.Entity(context.Background(), "Q404")
	assert.Error(t, err)
}

func TestClient_EntityOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/Special:EntityData/Q1.json", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"entities":{"Q1":{"id":"Q1","labels":{"en":{"language":"en","value":"universe"}}}}}`)
	}))
	defer server.Close()

	c := NewClient(httpGetter{}, server.URL)
	e, _, err := c.Entity(context.Background(), "Q1")
	require.NoError(t, err)
	labels, ok := e.Labels("en", "en")
	require.True(t, ok)
	assert.Equal(t, []string{"universe"}, labels)
}

type httpGetter struct{}

func (httpGetter) GetJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestWhatLinksHereURL(t *testing.T) {
	assert.Equal(t,
		"https://www.wikidata.org/w/index.php?title=Special:WhatLinksHere/Q5&namespace=0&limit=100",
		WhatLinksHereURL("https://www.wikidata.org", "Q5", 0, 100))
}

func TestListPage(t *testing.T) {
	body, err := os.ReadFile("testdata/whatlinkshere.html")
	require.NoError(t, err)
	doc, err := ParseListPage(body)
	require.NoError(t, err)

	assert.Equal(t, []string{"Q42", "Q1868"}, ItemIDs(doc))

	next, ok := NextPageURL(doc, 3, "https://www.wikidata.org/w/index.php?title=Special:WhatLinksHere/Q5")
	require.True(t, ok)
	assert.Equal(t, "https://www.wikidata.org/w/index.php?title=Special:WhatLinksHere/Q5&namespace=0&limit=3&from=1868&back=0", next)

	_, ok = NextPageURL(doc, 100, "https://www.wikidata.org/")
	assert.False(t, ok, "link text must match the page size")
}

func TestListPage_Last(t *testing.T) {
	body, err := os.ReadFile("testdata/whatlinkshere_last.html")
	require.NoError(t, err)
	doc, err := ParseListPage(body)
	require.NoError(t, err)

	_, ok := NextPageURL(doc, 3, "https://www.wikidata.org/")
	assert.False(t, ok)
	assert.Equal(t, []string{"Q7"}, ItemIDs(doc))
	assert.False(t, strings.Contains(strings.Join(ItemIDs(doc), ","), "Q999"))
}
