package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Paragraphs returns the text of every <p> element of an article, in
// document order. Empty paragraphs are skipped.
func Paragraphs(body []byte, contentType string) ([]string, error) {
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	data, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("decode article: %w", err)
		}
		data = body
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse article: %w", err)
	}

	// Inline template styles and citation markers ("[1]") live inside
	// paragraphs on Wikipedia
	doc.Find("script,noscript,style,sup.reference").Remove()

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs, nil
}
