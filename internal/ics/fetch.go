package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
)

// Subscription is a remote ICS feed merged into the store on refresh.
type Subscription struct {
	ID  string
	URL string
}

type cached struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads ICS feeds with conditional requests. The last good
// body per URL is kept in memory and served when the remote is down.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cached
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: make(map[string]cached)}
}

// Fetch returns the feed body. fromCache is true when the body came from
// a 304 or from the fallback after a failure.
func (f *Fetcher) Fetch(ctx context.Context, sub Subscription) (body []byte, fromCache bool, err error) {
	if sub.URL == "" {
		return nil, false, errors.New("subscription URL is empty")
	}

	f.mu.Lock()
	prev, havePrev := f.cache[sub.URL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return nil, false, err
	}
	if prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}
	if prev.lastModified != "" {
		req.Header.Set("If-Modified-Since", prev.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if havePrev {
			appLog.Error("ics fetch network error, using cached body", err, "id", sub.ID, "url", redactURL(sub.URL))
			return prev.body, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		f.mu.Lock()
		f.cache[sub.URL] = cached{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         data,
		}
		f.mu.Unlock()
		appLog.Info("ics fetch success", "id", sub.ID, "url", redactURL(sub.URL), "bytes", len(data))
		return data, false, nil

	case http.StatusNotModified:
		if !havePrev {
			return nil, false, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified", "id", sub.ID, "url", redactURL(sub.URL))
		return prev.body, true, nil

	default:
		if havePrev {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", sub.ID, "url", redactURL(sub.URL))
			return prev.body, true, nil
		}
		return nil, false, fmt.Errorf("fetch %s: %s", redactURL(sub.URL), resp.Status)
	}
}

// redactURL keeps scheme and host only; feed URLs often embed tokens.
func redactURL(u string) string {
	const redacted = "/...(redacted)"
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redacted
}
