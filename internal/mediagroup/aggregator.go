package mediagroup

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// File is one image of an album as Telegram announced it.
type File struct {
	FileID   string
	Name     string
	MimeType string
}

type Item struct {
	ChatID       int64
	UserID       int64
	Username     string
	MediaGroupID string
	MessageID    int
	File         File
}

// Group is a complete album. Files are in message order, which is the
// order the user picked them in.
type Group struct {
	ChatID   int64
	UserID   int64
	Username string
	Files    []File
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
}

type pendingItem struct {
	messageID int
	file      File
}

type pendingGroup struct {
	chatID   int64
	userID   int64
	username string
	items    []pendingItem
	timer    *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

// Add queues one album item. The group is flushed once no further item
// arrived for the debounce period.
func (a *Aggregator) Add(item Item) bool {
	if item.MediaGroupID == "" || item.File.FileID == "" {
		return false
	}

	key := makeKey(item.ChatID, item.UserID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			chatID:   item.ChatID,
			userID:   item.UserID,
			username: item.Username,
		}
		a.groups[key] = pg
	}
	pg.items = append(pg.items, pendingItem{messageID: item.MessageID, file: item.File})

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	return true
}

// Pending reports how many albums are still collecting.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// FlushAll delivers every pending album immediately.
func (a *Aggregator) FlushAll() {
	a.mu.Lock()
	keys := make([]string, 0, len(a.groups))
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		keys = append(keys, key)
	}
	a.mu.Unlock()

	for _, key := range keys {
		a.flush(key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	onFlush := a.onFlush
	a.mu.Unlock()

	// Updates are handled concurrently, so items may have been added out
	// of order.
	sort.SliceStable(pg.items, func(i, j int) bool {
		return pg.items[i].messageID < pg.items[j].messageID
	})
	group := Group{
		ChatID:   pg.chatID,
		UserID:   pg.userID,
		Username: pg.username,
		Files:    make([]File, 0, len(pg.items)),
	}
	for _, it := range pg.items {
		group.Files = append(group.Files, it.file)
	}

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID, userID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%d:%s", chatID, userID, mediaGroupID)
}
