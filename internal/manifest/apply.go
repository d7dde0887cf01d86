package manifest

import (
	"fmt"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// Applied is a manifest hook installed in a registry.
type Applied struct {
	Rule   *Rule
	Handle *hook.Handle
}

// Apply resolves, registers and (unless detached) attaches every hook of
// the manifest. Hooks sharing an owner name share one owner identity.
// On error the hooks applied so far are removed again.
func (m *Manifest) Apply(reg *hook.Registry) ([]Applied, error) {
	rules, err := m.Compile()
	if err != nil {
		return nil, err
	}

	owners := make(map[string]hook.Owner)
	applied := make([]Applied, 0, len(rules))

	for i, r := range rules {
		a, err := applyRule(reg, owners, r)
		if err != nil {
			Revert(applied)
			return nil, fmt.Errorf("hooks[%d] (%s): %w", i, r.Hook.Owner, err)
		}
		applied = append(applied, a)
	}
	return applied, nil
}

func applyRule(reg *hook.Registry, owners map[string]hook.Owner, r *Rule) (Applied, error) {
	h := r.Hook

	owner, ok := owners[h.Owner]
	if !ok {
		owner = hook.NewOwner(h.Owner)
		owners[h.Owner] = owner
	}

	t, err := reg.Resolve(h.Target.Type, h.Target.Name, h.Target.Params, h.Target.Generics)
	if err != nil {
		return Applied{}, err
	}

	handle, err := reg.Hook(owner, t, h.Priority, h.Precede, h.Follow)
	if err != nil {
		return Applied{}, err
	}
	if err := handle.SetCallback(r.Callback()); err != nil {
		_ = handle.Remove()
		return Applied{}, err
	}
	if !h.Detached {
		if err := handle.Attach(); err != nil {
			_ = handle.Remove()
			return Applied{}, err
		}
	}
	return Applied{Rule: r, Handle: handle}, nil
}

// Revert removes applied hooks in reverse order. Redirections stay
// installed; a chain with no registrations passes calls through.
func Revert(applied []Applied) {
	for i := len(applied) - 1; i >= 0; i-- {
		_ = applied[i].Handle.Remove()
	}
}
