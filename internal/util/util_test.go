package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotsChecker_Allowed(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits.Add(1)
		_, _ = fmt.Fprint(w, "User-agent: dares\nDisallow: /w/\nCrawl-delay: 2\n")
	}))
	defer server.Close()

	r := NewRobotsChecker(server.Client(), "dares/0.1 (+https://example.org)")
	ctx := context.Background()

	ok, delay, err := r.Allowed(ctx, server.URL+"/wiki/Special:EntityData/Q42.json")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)

	ok, _, err = r.Allowed(ctx, server.URL+"/w/index.php?title=Special:WhatLinksHere/Q5")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), hits.Load(), "robots.txt must be fetched once per host")
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := NewRobotsChecker(server.Client(), "dares")
	ok, _, err := r.Allowed(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProductToken(t *testing.T) {
	assert.Equal(t, "dares", ProductToken("dares/0.1 (+https://github.com/ppiankov/dares)"))
	assert.Equal(t, "", ProductToken(""))
}

func TestNewProxyFunc(t *testing.T) {
	fn := NewProxyFunc("http://proxy.local:3128", "", "internal.example")

	req, _ := http.NewRequest(http.MethodGet, "https://www.wikidata.org/", nil)
	u, err := fn(req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "proxy.local:3128", u.Host)

	req, _ = http.NewRequest(http.MethodGet, "http://internal.example/x", nil)
	u, err = fn(req)
	require.NoError(t, err)
	assert.Nil(t, u, "no_proxy hosts bypass the proxy")
}
