package handlers

import (
	"sort"
	"sync"

	"chithravani/internal/session"
	"chithravani/internal/workspace"
)

// intakeQueue appends separately sent photos in message order even though
// their downloads finish in any order. A photo reserves a slot before it is
// downloaded; a finished slot is committed only once every lower message of
// the same session has been committed.
type intakeQueue struct {
	mu      sync.Mutex
	pending map[session.Key][]*intakeSlot
}

type intakeSlot struct {
	messageID int
	done      bool
	sources   []workspace.Source
}

func newIntakeQueue() *intakeQueue {
	return &intakeQueue{pending: make(map[session.Key][]*intakeSlot)}
}

// reserve registers messageID for key. Reserving the same message twice
// returns the existing slot.
func (q *intakeQueue) reserve(key session.Key, messageID int) *intakeSlot {
	q.mu.Lock()
	defer q.mu.Unlock()

	slots := q.pending[key]
	for _, s := range slots {
		if s.messageID == messageID {
			return s
		}
	}
	slot := &intakeSlot{messageID: messageID}
	slots = append(slots, slot)
	sort.Slice(slots, func(i, j int) bool { return slots[i].messageID < slots[j].messageID })
	q.pending[key] = slots
	return slot
}

// complete marks slot finished with sources (nil when the download failed)
// and hands every committable prefix to commit, in order, under the queue
// lock. It reports whether anything was committed.
func (q *intakeQueue) complete(key session.Key, slot *intakeSlot, sources []workspace.Source, commit func([]workspace.Source)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot.done = true
	slot.sources = sources

	slots := q.pending[key]
	var ready []workspace.Source
	n := 0
	for n < len(slots) && slots[n].done {
		ready = append(ready, slots[n].sources...)
		n++
	}
	if n == len(slots) {
		delete(q.pending, key)
	} else {
		q.pending[key] = slots[n:]
	}

	if len(ready) == 0 {
		return false
	}
	commit(ready)
	return true
}

func (q *intakeQueue) len(key session.Key) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[key])
}
