package workspace

import (
	"context"
	"sync"
	"time"
)

// Generator turns a generation request into story text.
type Generator interface {
	GenerateStory(ctx context.Context, req GenerationRequest) (string, error)
}

type StoreOptions struct {
	Previews Previews
	Now      func() time.Time
}

// Store owns every live workspace, one per session key.
type Store struct {
	mu       sync.Mutex
	m        map[string]*Workspace
	previews Previews
	now      func() time.Time
}

func NewStore(opts StoreOptions) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		m:        make(map[string]*Workspace),
		previews: opts.Previews,
		now:      now,
	}
}

// Open starts a fresh workspace under key. A previous workspace under the
// same key is torn down first.
func (s *Store) Open(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.m[key]; ok {
		old.Close()
	}
	ws := newWorkspace(key, s.previews, s.now)
	s.m[key] = ws
	return ws.Snapshot()
}

// Ensure returns the workspace under key, creating it if needed.
func (s *Store) Ensure(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(key).Snapshot()
}

func (s *Store) Get(key string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.m[key]
	if !ok {
		return Snapshot{}, false
	}
	return ws.Snapshot(), true
}

// Update runs fn against the workspace under key. The returned snapshot
// reflects the state after fn, also when fn fails.
func (s *Store) Update(key string, fn func(*Workspace) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.m[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	var err error
	if fn != nil {
		err = fn(ws)
	}
	return ws.Snapshot(), err
}

// UpsertUpdate is Update on a workspace that is created on demand.
func (s *Store) UpsertUpdate(key string, fn func(*Workspace) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.getOrCreateLocked(key)
	var err error
	if fn != nil {
		err = fn(ws)
	}
	return ws.Snapshot(), err
}

// Close tears the workspace down and releases its preview handles.
func (s *Store) Close(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.m[key]
	if !ok {
		return false
	}
	ws.Close()
	delete(s.m, key)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// EvictIdle closes workspaces untouched for longer than maxIdle. Workspaces
// waiting on the story service are kept.
func (s *Store) EvictIdle(maxIdle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	var evicted []string
	for key, ws := range s.m {
		if ws.Loading() || ws.UpdatedAt().After(cutoff) {
			continue
		}
		ws.Close()
		delete(s.m, key)
		evicted = append(evicted, key)
	}
	return evicted
}

// Generate runs one story generation for the workspace under key. The store
// lock is not held while gen runs. onStart, if set, sees the loading state
// before the request goes out.
func (s *Store) Generate(ctx context.Context, key string, gen Generator, onStart func(Snapshot)) (Snapshot, error) {
	s.mu.Lock()
	ws, ok := s.m[key]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	req, err := ws.BeginGeneration()
	snap := ws.Snapshot()
	s.mu.Unlock()
	if err != nil {
		return snap, err
	}

	if onStart != nil {
		onStart(snap)
	}

	story, genErr := gen.GenerateStory(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.m[key]; !ok || current != ws {
		return Snapshot{}, ErrClosed
	}
	if genErr != nil {
		ws.FailGeneration()
		return ws.Snapshot(), genErr
	}
	ws.CompleteGeneration(story)
	return ws.Snapshot(), nil
}

func (s *Store) getOrCreateLocked(key string) *Workspace {
	if ws, ok := s.m[key]; ok {
		return ws
	}
	ws := newWorkspace(key, s.previews, s.now)
	s.m[key] = ws
	return ws
}
