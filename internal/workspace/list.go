package workspace

import (
	"fmt"

	"github.com/google/uuid"
)

// ImageList is the ordered image sequence of a workspace. The order is the
// narrative order sent to the story service.
type ImageList struct {
	entries  []Entry
	previews Previews
	newID    func() string
}

func NewImageList(previews Previews) *ImageList {
	return &ImageList{
		previews: previews,
		newID:    uuid.NewString,
	}
}

// Add appends one ready entry per source, in the given order.
func (l *ImageList) Add(sources ...Source) []Entry {
	added := make([]Entry, 0, len(sources))
	for _, src := range sources {
		e := Entry{
			ID:     l.newID(),
			Source: src,
			Status: StatusReady,
		}
		if l.previews != nil {
			e.Preview = l.previews.Issue(src.Name, src.MimeType, src.Data)
		}
		l.entries = append(l.entries, e)
		added = append(added, e)
	}
	return added
}

func (l *ImageList) Remove(id string) (Entry, error) {
	idx := l.IndexOf(id)
	if idx < 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	removed := l.entries[idx]
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	l.release(removed)
	return removed, nil
}

// Move relocates the entry at from to position to. Every other entry keeps
// its relative order.
func (l *ImageList) Move(from, to int) error {
	n := len(l.entries)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d of %d", ErrInvalidIndex, from, to, n)
	}
	if from == to {
		return nil
	}

	moved := l.entries[from]
	if from < to {
		copy(l.entries[from:to], l.entries[from+1:to+1])
	} else {
		copy(l.entries[to+1:from+1], l.entries[to:from])
	}
	l.entries[to] = moved
	return nil
}

// Reorder moves activeID onto the position of overID, the way a drop onto
// another card works. It reports whether anything moved.
func (l *ImageList) Reorder(activeID, overID string) (bool, error) {
	if activeID == overID {
		return false, nil
	}

	from := l.IndexOf(activeID)
	if from < 0 {
		return false, fmt.Errorf("%w: %s", ErrImageNotFound, activeID)
	}
	to := l.IndexOf(overID)
	if to < 0 {
		return false, fmt.Errorf("%w: %s", ErrImageNotFound, overID)
	}

	if err := l.Move(from, to); err != nil {
		return false, err
	}
	return true, nil
}

func (l *ImageList) IndexOf(id string) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (l *ImageList) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the sequence.
func (l *ImageList) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *ImageList) Sources() []Source {
	out := make([]Source, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Source)
	}
	return out
}

func (l *ImageList) SetStatus(st Status) {
	for i := range l.entries {
		l.entries[i].Status = st
	}
}

// ReleaseAll revokes every preview handle and empties the list.
func (l *ImageList) ReleaseAll() {
	for _, e := range l.entries {
		l.release(e)
	}
	l.entries = nil
}

func (l *ImageList) release(e Entry) {
	if l.previews != nil && !e.Preview.IsZero() {
		l.previews.Release(e.Preview)
	}
}
