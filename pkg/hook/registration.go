package hook

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// Callback observes and rewrites one native call. ret is the return cell,
// args holds the instance slot, the declared parameters in order and the
// method identity slot. Overrides made by a callback are committed when
// it returns nil and discarded when it returns an error or panics.
// Returning an error wrapped with Critical aborts the process.
type Callback func(ret *ReturnCell, args []*Cell) error

// Registration is one subscriber's position in a chain: owner, priority
// (lower runs earlier), ordering constraints and callbacks.
type Registration struct {
	owner    Owner
	priority int
	precede  map[string]struct{}
	follow   map[string]struct{}

	mu        sync.Mutex
	callbacks atomic.Pointer[[]Callback]
}

// NewRegistration validates and builds a registration. An owner named in
// both precede and follow is rejected with a ConfigurationError.
func NewRegistration(owner Owner, priority int, precede, follow []string) (*Registration, error) {
	if !owner.Valid() {
		return nil, &ConfigurationError{Owner: owner.Name(), Err: ErrMissingOwner}
	}

	r := &Registration{
		owner:    owner,
		priority: priority,
		precede:  toSet(precede),
		follow:   toSet(follow),
	}
	for name := range r.precede {
		if _, ok := r.follow[name]; ok {
			return nil, &ConfigurationError{Owner: owner.Name(), Err: ErrOverlappingConstraints}
		}
	}

	empty := []Callback{}
	r.callbacks.Store(&empty)
	return r, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Owner returns the owner name.
func (r *Registration) Owner() string { return r.owner.Name() }

// Priority returns the priority.
func (r *Registration) Priority() int { return r.priority }

// Precede returns the owners this registration must run before.
func (r *Registration) Precede() []string { return fromSet(r.precede) }

// Follow returns the owners this registration must run after.
func (r *Registration) Follow() []string { return fromSet(r.follow) }

func (r *Registration) precedes(owner string) bool {
	_, ok := r.precede[owner]
	return ok
}

func (r *Registration) follows(owner string) bool {
	_, ok := r.follow[owner]
	return ok
}

// SetCallback replaces all callbacks with fn.
func (r *Registration) SetCallback(owner Owner, fn Callback) error {
	if err := r.checkModify(owner, fn); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := []Callback{fn}
	r.callbacks.Store(&next)
	return nil
}

// AddCallback appends fn to the callbacks, which run in the order added.
func (r *Registration) AddCallback(owner Owner, fn Callback) error {
	if err := r.checkModify(owner, fn); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := append(slices.Clone(*r.callbacks.Load()), fn)
	r.callbacks.Store(&next)
	return nil
}

// ClearCallbacks removes every callback. The registration keeps its place
// in the chain.
func (r *Registration) ClearCallbacks(owner Owner) error {
	if !r.owner.Is(owner) {
		return &ConfigurationError{Owner: owner.Name(), Err: ErrNotOwner}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := []Callback{}
	r.callbacks.Store(&empty)
	return nil
}

func (r *Registration) checkModify(owner Owner, fn Callback) error {
	if !r.owner.Is(owner) {
		return &ConfigurationError{Owner: owner.Name(), Err: ErrNotOwner}
	}
	if fn == nil {
		return &ConfigurationError{Owner: owner.Name(), Err: ErrMissingCallback}
	}
	return nil
}

// snapshot returns the callbacks as of now; the slice is never mutated.
func (r *Registration) snapshot() []Callback {
	return *r.callbacks.Load()
}
