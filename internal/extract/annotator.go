package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// Annotator segments paragraphs into sentences. Implementations must be
// deterministic and keep paragraph order in the flattened output.
type Annotator interface {
	Sentences(ctx context.Context, paragraphs []string) ([]string, error)
}

// HTTPAnnotator delegates segmentation to an external linguistic service
type HTTPAnnotator struct {
	url    string
	client *http.Client
}

// NewHTTPAnnotator creates a client for the service at endpoint. A nil
// proxy defers to the environment.
func NewHTTPAnnotator(endpoint string, timeout time.Duration, proxy func(*http.Request) (*url.URL, error)) *HTTPAnnotator {
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: proxy},
	}
	return &HTTPAnnotator{url: endpoint, client: client}
}

type annotateRequest struct {
	Paragraphs []string `json:"paragraphs"`
}

type annotateResponse struct {
	Sentences []string `json:"sentences"`
}

// Sentences posts the paragraphs and returns the service's sentences
func (a *HTTPAnnotator) Sentences(ctx context.Context, paragraphs []string) ([]string, error) {
	if len(paragraphs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(annotateRequest{Paragraphs: paragraphs})
	if err != nil {
		return nil, fmt.Errorf("encode annotate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("annotate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode annotate response: %w", err)
	}
	return out.Sentences, nil
}

// RuleSplitter is the built-in segmenter: it splits on ., ! and ? followed
// by whitespace, and keeps known abbreviations attached.
type RuleSplitter struct {
	abbreviations map[string]bool
}

// NewRuleSplitter creates a splitter with a small English abbreviation list
func NewRuleSplitter() *RuleSplitter {
	abbr := make(map[string]bool)
	for _, a := range []string{"mr", "mrs", "ms", "dr", "prof", "st", "jr", "sr", "vs", "etc", "e.g", "i.e", "c", "ca", "vol", "u.s", "u.k"} {
		abbr[a] = true
	}
	return &RuleSplitter{abbreviations: abbr}
}

// Sentences implements Annotator
func (s *RuleSplitter) Sentences(_ context.Context, paragraphs []string) ([]string, error) {
	var out []string
	for _, p := range paragraphs {
		out = append(out, s.Split(p)...)
	}
	return out, nil
}

// Split segments one paragraph
func (s *RuleSplitter) Split(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)

	var sentences []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if r == '.' && s.isAbbreviation(runes[start:i]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			sentences = append(sentences, sent)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// isAbbreviation reports whether the word before a period is an
// abbreviation or a single initial
func (s *RuleSplitter) isAbbreviation(before []rune) bool {
	j := len(before)
	for j > 0 && before[j-1] != ' ' {
		j--
	}
	orig := strings.TrimLeft(string(before[j:]), "(\"'")
	if orig == "" {
		return false
	}
	if s.abbreviations[strings.ToLower(orig)] {
		return true
	}
	w := []rune(orig)
	return len(w) == 1 && unicode.IsUpper(w[0])
}
