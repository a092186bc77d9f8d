// Package vfile simulates the file external collaborator spec.md §6
// names directly: file_reopen, file_close, file_read_at, file_write_at,
// file_length. A real kernel backs this with the filesystem proper
// (out of scope here, per SPEC_FULL.md §1); Store stands in for it the
// way the teacher's ufs package stands in for a real disk-backed inode
// table — a small, self-contained simulation exercised by tests rather
// than a production filesystem.
package vfile

import (
	"sync"

	"github.com/google/uuid"
)

// content_t is the shared, named backing bytes one or more Handles may
// point at — reopening a Handle does not copy content, matching
// spec.md §4.4.3's "independent handle whose close is idempotent with
// the user's view of the original file".
type content_t struct {
	mu   sync.Mutex
	data []byte
}

// / Store is the simulated filesystem: a flat namespace of named byte
// / blobs, open for business before vm.Init ever runs.
type Store struct {
	mu    sync.Mutex
	files map[string]*content_t
}

// / NewStore returns an empty simulated filesystem.
func NewStore() *Store {
	return &Store{files: make(map[string]*content_t)}
}

// / Create installs name with the given initial contents, overwriting
// / any prior file of the same name.
func (s *Store) Create(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.files[name] = &content_t{data: buf}
}

// / Open is the root file_reopen: it returns a fresh Handle over name's
// / shared content, stamped with its own identity.
func (s *Store) Open(name string) (*Handle, bool) {
	s.mu.Lock()
	c, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return &Handle{id: uuid.New(), name: name, content: c}, true
}

// / Handle is one open reference to a file, produced either by
// / Store.Open or by Reopen. Every Handle carries its own uuid so two
// / handles over the same content_t are never mistaken for each other —
// / this is what lets a file-backed page's destroy() close its own
// / handle without touching a sibling's.
type Handle struct {
	id      uuid.UUID
	name    string
	content *content_t
	closed  bool
}

// / ID returns the handle's unique identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// / Name returns the underlying file's name.
func (h *Handle) Name() string {
	return h.name
}

// / Reopen is file_reopen applied to an already-open handle: it returns
// / a new Handle with a new identity over the same shared content.
// / spec.md §4.4.3 requires this for every file-backed page so that
// / destroying one page's handle can never close another's.
func (h *Handle) Reopen() *Handle {
	return &Handle{id: uuid.New(), name: h.name, content: h.content}
}

// / Close marks the handle closed. Closing is idempotent with respect
// / to the underlying file: other handles over the same content are
// / unaffected. It panics on a double close of the same handle, which
// / would indicate a page destroyed twice (spec.md §8: "destroy followed
// / by destroy is not permitted").
func (h *Handle) Close() {
	if h.closed {
		panic("vfile: double close")
	}
	h.closed = true
}

// / Length is file_length.
func (h *Handle) Length() int {
	h.content.mu.Lock()
	defer h.content.mu.Unlock()
	return len(h.content.data)
}

// / ReadAt is file_read_at: it copies up to len(dst) bytes starting at
// / offset into dst and returns the number actually copied, which is
// / short if offset+len(dst) runs past the end of the file.
func (h *Handle) ReadAt(dst []byte, offset int) int {
	h.content.mu.Lock()
	defer h.content.mu.Unlock()
	if offset >= len(h.content.data) {
		return 0
	}
	n := copy(dst, h.content.data[offset:])
	return n
}

// / WriteAt is file_write_at: it writes src at offset, growing the file
// / if necessary, and returns the number of bytes written (always
// / len(src), since the simulated store never fails a write).
func (h *Handle) WriteAt(src []byte, offset int) int {
	h.content.mu.Lock()
	defer h.content.mu.Unlock()
	need := offset + len(src)
	if need > len(h.content.data) {
		grown := make([]byte, need)
		copy(grown, h.content.data)
		h.content.data = grown
	}
	return copy(h.content.data[offset:], src)
}
