package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// Photo is one picture of a Telegram album.
type Photo struct {
	ChatID  int64
	UserID  int64
	GroupID string
	Caption string
	FileID  string
}

// Album is every photo of a media group, in arrival order.
type Album struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
}

type Options struct {
	Debounce time.Duration
	// MaxPhotos stops collecting once an album holds this many photos.
	MaxPhotos int
	OnFlush   func(Album)
}

type Aggregator struct {
	mu        sync.Mutex
	debounce  time.Duration
	maxPhotos int
	onFlush   func(Album)
	pending   map[string]*pendingAlbum
	stopped   bool
}

type pendingAlbum struct {
	album Album
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}
	maxPhotos := opts.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = 10
	}

	return &Aggregator{
		debounce:  debounce,
		maxPhotos: maxPhotos,
		onFlush:   opts.OnFlush,
		pending:   make(map[string]*pendingAlbum),
	}
}

// Add buffers a photo until its album has been quiet for the debounce window.
func (a *Aggregator) Add(p Photo) {
	if p.GroupID == "" || p.FileID == "" {
		return
	}

	key := albumKey(p.ChatID, p.GroupID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	pa, ok := a.pending[key]
	if !ok {
		pa = &pendingAlbum{album: Album{ChatID: p.ChatID, UserID: p.UserID}}
		a.pending[key] = pa
	}
	if len(pa.album.FileIDs) < a.maxPhotos {
		pa.album.FileIDs = append(pa.album.FileIDs, p.FileID)
	}
	if p.Caption != "" {
		pa.album.Caption = p.Caption
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

// Pending reports how many albums are still collecting photos.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop drops every buffered album and ignores later photos.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for key, pa := range a.pending {
		if pa.timer != nil {
			pa.timer.Stop()
		}
		delete(a.pending, key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.pending[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	album := pa.album
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(album)
	}
}

func albumKey(chatID int64, groupID string) string {
	return fmt.Sprintf("%d:%s", chatID, groupID)
}
