package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONGetter fetches and decodes a JSON document
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Client reads items from the EntityData endpoint
type Client struct {
	getter JSONGetter
	base   string
}

// NewClient creates a client for the Wikidata instance at base
func NewClient(getter JSONGetter, base string) *Client {
	return &Client{getter: getter, base: strings.TrimRight(base, "/")}
}

// EntityURL returns the EntityData URL of id
func (c *Client) EntityURL(id string) string {
	return fmt.Sprintf("%s/wiki/Special:EntityData/%s.json", c.base, id)
}

// Entity fetches id and returns the parsed entity together with the raw document
func (c *Client) Entity(ctx context.Context, id string) (*Entity, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getter.GetJSON(ctx, c.EntityURL(id), &raw); err != nil {
		return nil, nil, fmt.Errorf("entity %s: %w", id, err)
	}
	e, err := ParseDocument(raw, id)
	if err != nil {
		return nil, nil, err
	}
	return e, raw, nil
}

// Labels fetches id and applies the label contract to it
func (c *Client) Labels(ctx context.Context, id, lang, fallback string) ([]string, bool, error) {
	e, _, err := c.Entity(ctx, id)
	if err != nil {
		return nil, false, err
	}
	labels, ok := e.Labels(lang, fallback)
	return labels, ok, nil
}
