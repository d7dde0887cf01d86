package binder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// Table is a static binder keyed by owner and member name.
type Table struct {
	mu      sync.RWMutex
	entries map[string]hook.Binding
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]hook.Binding)}
}

func tableKey(owner, name string) string { return owner + "\x00" + name }

// Add registers b for owner.name, replacing any previous entry.
func (t *Table) Add(owner, name string, b hook.Binding) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tableKey(owner, name)] = b
	return t
}

// Bind implements hook.Binder.
func (t *Table) Bind(owner, name string, _ hook.Signature) (hook.Binding, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.entries[tableKey(owner, name)]
	if !ok {
		return hook.Binding{}, fmt.Errorf("%w: %s.%s is not in the table", hook.ErrNotCallable, owner, name)
	}
	return b, nil
}

// First tries each binder in turn and returns the first successful
// binding. If all fail the errors are joined.
func First(binders ...hook.Binder) hook.Binder {
	return hook.BinderFunc(func(owner, name string, sig hook.Signature) (hook.Binding, error) {
		var errs []error
		for _, b := range binders {
			binding, err := b.Bind(owner, name, sig)
			if err == nil {
				return binding, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return hook.Binding{}, hook.ErrNotCallable
		}
		return hook.Binding{}, errors.Join(errs...)
	})
}
