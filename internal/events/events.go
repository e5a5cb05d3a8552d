package events

import (
	"sync"

	"cobiv/internal/logging"
)

// FileContentChangedFunc observes a change to a catalog file's content.
type FileContentChangedFunc func(fileID int64)

// CursorChangedFunc observes the primary cursor moving to a new record.
// fileID is 0 and name empty when the cursor no longer points anywhere.
type CursorChangedFunc func(fileID int64, name string)

// SetLoadedFunc observes a new working set being loaded.
type SetLoadedFunc func(size int)

// Bus dispatches events to registered handlers.
type Bus struct {
	mu             sync.RWMutex
	contentChanged []FileContentChangedFunc
	cursorChanged  []CursorChangedFunc
	setLoaded      []SetLoadedFunc
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnFileContentChanged registers fn.
func (b *Bus) OnFileContentChanged(fn FileContentChangedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contentChanged = append(b.contentChanged, fn)
}

// OnCursorChanged registers fn.
func (b *Bus) OnCursorChanged(fn CursorChangedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursorChanged = append(b.cursorChanged, fn)
}

// OnSetLoaded registers fn.
func (b *Bus) OnSetLoaded(fn SetLoadedFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLoaded = append(b.setLoaded, fn)
}

// FileContentChanged publishes a content change for each id.
func (b *Bus) FileContentChanged(ids ...int64) {
	b.mu.RLock()
	handlers := b.contentChanged
	b.mu.RUnlock()

	for _, id := range ids {
		logging.Debug("event: file content changed id=%d", id)
		for _, fn := range handlers {
			fn(id)
		}
	}
}

// CursorChanged publishes a cursor move.
func (b *Bus) CursorChanged(fileID int64, name string) {
	b.mu.RLock()
	handlers := b.cursorChanged
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(fileID, name)
	}
}

// SetLoaded publishes that a working set of size entries is ready.
func (b *Bus) SetLoaded(size int) {
	b.mu.RLock()
	handlers := b.setLoaded
	b.mu.RUnlock()

	logging.Debug("event: set loaded size=%d", size)
	for _, fn := range handlers {
		fn(size)
	}
}
