package object

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/axeberg/axebergos/internal/store"
)

type entry struct {
	primary Handle
	object  Object
	refs    int
	aliases []Handle
}

// Table is the kernel object table. It is safe for concurrent use; teardown
// hooks and listeners run outside the table lock so they may call back into
// the table.
type Table struct {
	mu            sync.Mutex
	next          Handle
	entries       *store.MemoryStore[Handle, entry]
	aliases       map[Handle]Handle
	maxHandles    int
	logger        hclog.Logger
	freeListeners []func(Handle, Object)
}

// New creates an empty table.
func New(options ...Option) *Table {
	t := &Table{
		entries: store.New[Handle, entry](func(e *entry) Handle { return e.primary }),
		aliases: make(map[Handle]Handle),
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// lookup resolves h to its entry; caller holds t.mu.
func (t *Table) lookup(h Handle) (*entry, error) {
	primary, ok := t.aliases[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	e, err := t.entries.Load(primary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	return e, nil
}

func (t *Table) mint() (Handle, error) {
	if t.maxHandles > 0 && len(t.aliases) >= t.maxHandles {
		return None, ErrTableFull
	}
	t.next++
	return t.next, nil
}

// Insert stores obj with a reference count of one.
func (t *Table) Insert(obj Object) (Handle, error) {
	if obj == nil {
		return None, ErrNilObject
	}
	t.mu.Lock()
	h, err := t.mint()
	if err != nil {
		t.mu.Unlock()
		return None, err
	}
	t.entries.Save(&entry{primary: h, object: obj, refs: 1, aliases: []Handle{h}})
	t.aliases[h] = h
	t.mu.Unlock()
	t.logger.Trace("insert", "handle", h, "kind", obj.Kind())
	return h, nil
}

// Retain increments the reference count of the object behind h.
func (t *Table) Retain(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookup(h)
	if err != nil {
		return err
	}
	e.refs++
	t.logger.Trace("retain", "handle", h, "refs", e.refs)
	return nil
}

// Dup adds a reference and mints a new alias for the same object. Both the
// alias and the original share one reference count.
func (t *Table) Dup(h Handle) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookup(h)
	if err != nil {
		return None, err
	}
	alias, err := t.mint()
	if err != nil {
		return None, err
	}
	e.refs++
	e.aliases = append(e.aliases, alias)
	t.aliases[alias] = e.primary
	t.logger.Trace("dup", "handle", h, "alias", alias, "refs", e.refs)
	return alias, nil
}

// Release drops one reference. When the count reaches zero every alias is
// invalidated and the object's finalizer runs.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	e, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	e.refs--
	if refs := e.refs; refs > 0 {
		t.mu.Unlock()
		t.logger.Trace("release", "handle", h, "refs", refs)
		return nil
	}
	for _, alias := range e.aliases {
		delete(t.aliases, alias)
	}
	t.entries.Delete(e.primary)
	listeners := t.freeListeners
	t.mu.Unlock()

	t.logger.Debug("free", "handle", e.primary, "kind", e.object.Kind())
	if f, ok := e.object.(Finalizer); ok {
		f.Finalize()
	}
	for _, fn := range listeners {
		fn(e.primary, e.object)
	}
	return nil
}

// Get returns the object behind h, or false for unknown or freed handles.
func (t *Table) Get(h Handle) (Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookup(h)
	if err != nil {
		return nil, false
	}
	return e.object, true
}

// Refcount returns the current reference count.
func (t *Table) Refcount(h Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	return e.refs, nil
}

// Describe returns information about a live handle.
func (t *Table) Describe(h Handle) (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.lookup(h)
	if err != nil {
		return Info{}, false
	}
	return Info{Handle: h, Primary: e.primary, Kind: e.object.Kind(), Refs: e.refs}, true
}

// List describes every live object by its primary handle.
func (t *Table) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.entries.List(nil)
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, Info{Handle: e.primary, Primary: e.primary, Kind: e.object.Kind(), Refs: e.refs})
	}
	return out
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	return t.entries.Len()
}

// As resolves h and asserts the object to T.
func As[T Object](t *Table, h Handle) (T, bool) {
	var zero T
	obj, ok := t.Get(h)
	if !ok {
		return zero, false
	}
	v, ok := obj.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
