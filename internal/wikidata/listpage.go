package wikidata

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var itemHref = regexp.MustCompile(`^/wiki/(Q[0-9]+)$`)

// WhatLinksHereURL returns the first list page of entityType
func WhatLinksHereURL(base, entityType string, namespace, pageSize int) string {
	return fmt.Sprintf("%s/w/index.php?title=Special:WhatLinksHere/%s&namespace=%d&limit=%d",
		strings.TrimRight(base, "/"), entityType, namespace, pageSize)
}

// ParseListPage parses a WhatLinksHere page body
func ParseListPage(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}
	return doc, nil
}

// NextPageURL finds the "next {pageSize}" link and resolves it against base.
// ok is false on the last page.
func NextPageURL(doc *goquery.Document, pageSize int, base string) (string, bool) {
	want := fmt.Sprintf("next %d", pageSize)

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Join(strings.Fields(s.Text()), " ") != want {
			return true
		}
		href, _ = s.Attr("href")
		return false
	})
	if href == "" {
		return "", false
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(h).String(), true
}

// ItemIDs returns the item identifiers listed on the page, in page order.
// Links carrying query parameters (history, edit) are ignored.
func ItemIDs(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var ids []string
	doc.Find("#mw-whatlinkshere-list a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.Contains(href, "?") {
			return
		}
		m := itemHref.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	})
	return ids
}
