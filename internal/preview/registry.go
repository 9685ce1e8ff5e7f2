// Package preview hands out revocable display references for uploaded
// images. A handle resolves to the image bytes until it is released.
package preview

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Handle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (h Handle) IsZero() bool {
	return h.ID == ""
}

type Item struct {
	Name      string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}

type Options struct {
	// BaseURL is prefixed to the handle ID to build Handle.URL.
	BaseURL string
}

type Registry struct {
	mu      sync.Mutex
	items   map[string]Item
	baseURL string
}

func NewRegistry(opts Options) *Registry {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = "/previews/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Registry{
		items:   make(map[string]Item),
		baseURL: baseURL,
	}
}

func (r *Registry) Issue(name, mimeType string, data []byte) Handle {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[id] = Item{
		Name:      name,
		MimeType:  mimeType,
		Data:      data,
		CreatedAt: time.Now(),
	}
	return Handle{ID: id, URL: r.baseURL + id}
}

// Release revokes h. It reports whether the handle was still live.
func (r *Registry) Release(h Handle) bool {
	if h.IsZero() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[h.ID]; !ok {
		return false
	}
	delete(r.items, h.ID)
	return true
}

func (r *Registry) Open(id string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	return item, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
