package export

import (
	"sync"

	"github.com/xob0t/poststudio/pkg/render"
)

// Document tracks the trees currently attached for capture.
type Document struct {
	mu    sync.Mutex
	trees map[*render.Tree]struct{}
}

func NewDocument() *Document {
	return &Document{trees: make(map[*render.Tree]struct{})}
}

// Attach adds t. Attaching the same tree twice is a no-op.
func (d *Document) Attach(t *render.Tree) {
	d.mu.Lock()
	d.trees[t] = struct{}{}
	d.mu.Unlock()
}

// Detach removes t if attached.
func (d *Document) Detach(t *render.Tree) {
	d.mu.Lock()
	delete(d.trees, t)
	d.mu.Unlock()
}

// Attached reports whether t is attached.
func (d *Document) Attached(t *render.Tree) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.trees[t]
	return ok
}

// Len returns the number of attached trees.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.trees)
}
