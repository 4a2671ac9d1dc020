package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const (
	httpTimeout   = 60 * time.Second
	maxIndexBytes = 8 << 20
	maxFetchBytes = 32 << 20
)

// HTTP reads a JSON index of documents published by a remote store:
//
//	{"items": [{"id": "...", "name": "...", "folder": "...",
//	            "modified": "2026-03-02T07:10:00Z", "url": "..."}]}
//
// Item urls may be relative to the index url.
type HTTP struct {
	name       string
	index      *url.URL
	token      string
	interval   time.Duration
	category   string
	classifier *Classifier
	client     *http.Client

	mu    sync.Mutex
	known map[string]indexItem
}

type indexDoc struct {
	Items []indexItem `json:"items"`
}

type indexItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Folder    string    `json:"folder"`
	Modified  time.Time `json:"modified"`
	URL       string    `json:"url"`
	MediaType string    `json:"mediaType"`
	Category  string    `json:"category"`
}

func NewHTTP(name, indexURL, token string, interval time.Duration, category string, classifier *Classifier) (*HTTP, error) {
	u, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("source %s: parse url: %w", name, err)
	}
	return &HTTP{
		name:       name,
		index:      u,
		token:      token,
		interval:   interval,
		category:   category,
		classifier: classifier,
		client:     &http.Client{Timeout: httpTimeout},
		known:      make(map[string]indexItem),
	}, nil
}

func (h *HTTP) Name() string            { return h.name }
func (h *HTTP) Interval() time.Duration { return h.interval }

func (h *HTTP) List(ctx context.Context, marker string) ([]core.SyncItem, error) {
	doc, err := h.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]core.SyncItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		if it.ID == "" || it.URL == "" {
			continue
		}
		item := core.SyncItem{
			ID:       it.ID,
			Name:     it.Name,
			Folder:   it.Folder,
			Modified: it.Modified.UTC(),
			Category: it.Category,
		}
		if item.Name == "" {
			item.Name = it.ID
		}
		if h.category != "" {
			item.Category = h.category
		} else if item.Category == "" {
			item.Category = h.classifier.Classify(item.Folder, item.Name)
		}
		if item.Marker() > marker {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Marker() < items[j].Marker() })
	return items, nil
}

// Fetch downloads an item seen by the last List. Unknown ids trigger one
// index reload before failing with core.ErrNotFound.
func (h *HTTP) Fetch(ctx context.Context, item core.SyncItem) (core.Artifact, error) {
	it, ok := h.lookup(item.ID)
	if !ok {
		if _, err := h.loadIndex(ctx); err != nil {
			return core.Artifact{}, err
		}
		if it, ok = h.lookup(item.ID); !ok {
			return core.Artifact{}, fmt.Errorf("source %s: item %s: %w", h.name, item.ID, core.ErrNotFound)
		}
	}

	ref, err := h.index.Parse(it.URL)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("source %s: item url: %w", h.name, err)
	}
	body, mediaType, err := h.get(ctx, ref.String(), maxFetchBytes)
	if err != nil {
		return core.Artifact{}, err
	}
	if it.MediaType != "" {
		mediaType = it.MediaType
	}
	return core.Artifact{FileName: item.Name, MediaType: mediaType, Data: body}, nil
}

func (h *HTTP) loadIndex(ctx context.Context) (indexDoc, error) {
	data, _, err := h.get(ctx, h.index.String(), maxIndexBytes)
	if err != nil {
		return indexDoc{}, err
	}
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return indexDoc{}, fmt.Errorf("source %s: parse index: %w", h.name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.known = make(map[string]indexItem, len(doc.Items))
	for _, it := range doc.Items {
		h.known[it.ID] = it
	}
	return doc, nil
}

func (h *HTTP) lookup(id string) (indexItem, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	it, ok := h.known[id]
	return it, ok
}

func (h *HTTP) get(ctx context.Context, target string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", core.AppUserAgent)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", &core.ExternalServiceError{
			Service:   h.name,
			Transient: !errors.Is(err, context.Canceled),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", &core.ExternalServiceError{Service: h.name, Transient: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &core.ExternalServiceError{
			Service:   h.name,
			Status:    resp.StatusCode,
			Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("GET %s", req.URL.Path),
		}
	}
	return data, resp.Header.Get("Content-Type"), nil
}
