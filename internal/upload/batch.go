package upload

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const MaxProgress = 100

var ErrIndexOutOfRange = errors.New("index out of range")

// FileEntry is a file accepted into a batch. Only the simulator moves Progress.
type FileEntry struct {
	ID       string
	Name     string
	Size     int64
	Type     string
	Payload  []byte
	Progress int
	Errored  bool
}

// Identity is the (name, size, type) tuple the UI displays. It is not unique.
type Identity struct {
	Name string
	Size int64
	Type string
}

func (e *FileEntry) Identity() Identity {
	return Identity{Name: e.Name, Size: e.Size, Type: e.Type}
}

// EntryView is a read-only copy of an entry without its payload.
type EntryView struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Progress int    `json:"progress"`
	Errored  bool   `json:"errored"`
}

// File is the payload handed to the transport on submit.
type File struct {
	Name    string
	Type    string
	Content []byte
}

// Batch is an ordered set of pending entries. Indices are batch-local and shift on removal.
type Batch struct {
	mu      sync.RWMutex
	entries []*FileEntry
}

func NewBatch() *Batch {
	return &Batch{}
}

// Add appends new entries and returns their stable IDs in insertion order.
func (b *Batch) Add(files ...File) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(files))
	for _, f := range files {
		entry := &FileEntry{
			ID:      uuid.New().String(),
			Name:    f.Name,
			Size:    int64(len(f.Content)),
			Type:    f.Type,
			Payload: f.Content,
		}
		b.entries = append(b.entries, entry)
		ids = append(ids, entry.ID)
	}
	return ids
}

// RemoveAt removes the entry currently at index. Callers must not reuse indices afterwards.
func (b *Batch) RemoveAt(index int) (EntryView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.entries) {
		return EntryView{}, fmt.Errorf("%w: %d for batch of %d", ErrIndexOutOfRange, index, len(b.entries))
	}

	removed := b.entries[index]
	b.entries = append(b.entries[:index], b.entries[index+1:]...)
	return viewOf(removed, index), nil
}

func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *Batch) Entries() []EntryView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	views := make([]EntryView, len(b.entries))
	for i, e := range b.entries {
		views[i] = viewOf(e, i)
	}
	return views
}

// Files returns the payloads in display order.
func (b *Batch) Files() []File {
	b.mu.RLock()
	defer b.mu.RUnlock()

	files := make([]File, len(b.entries))
	for i, e := range b.entries {
		files[i] = File{Name: e.Name, Type: e.Type, Content: e.Payload}
	}
	return files
}

// Advance moves an entry's progress forward by delta, clamped to MaxProgress.
// It returns the new value and false when the entry no longer exists.
func (b *Batch) Advance(id string, delta int) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.ID != id {
			continue
		}
		if delta > 0 {
			e.Progress = min(e.Progress+delta, MaxProgress)
		}
		return e.Progress, true
	}
	return 0, false
}

// Progress reports an entry's current progress.
func (b *Batch) Progress(id string) (int, bool) {
	return b.Advance(id, 0)
}

// MarkErrored flags every entry for visual feedback after a failed submit.
func (b *Batch) MarkErrored() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		e.Errored = true
	}
}

// Clear drops every entry and returns the IDs that were removed.
func (b *Batch) Clear() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.ID
	}
	b.entries = nil
	return ids
}

// ResetErrors clears the errored flag ahead of a retry.
func (b *Batch) ResetErrors() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		e.Errored = false
	}
}

func viewOf(e *FileEntry, index int) EntryView {
	return EntryView{
		ID:       e.ID,
		Index:    index,
		Name:     e.Name,
		Size:     e.Size,
		Type:     e.Type,
		Progress: e.Progress,
		Errored:  e.Errored,
	}
}

// RemoveIDs drops the entries with the given IDs and reports how many were removed.
func (b *Batch) RemoveIDs(ids ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if _, ok := drop[e.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}

// IDs returns entry IDs in display order.
func (b *Batch) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.ID
	}
	return ids
}
