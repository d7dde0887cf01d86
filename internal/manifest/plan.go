package manifest

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// TargetPlan is the callback order a manifest produces for one target.
type TargetPlan struct {
	Target      string
	Owners      []string
	Priorities  []int
	Ambiguities []hook.Ambiguity
	Cycles      []hook.Cycle
}

// Plan orders the manifest's hooks per target without resolving or
// touching any native code. Targets are returned in first-seen order.
func (m *Manifest) Plan(logger zerolog.Logger) ([]TargetPlan, error) {
	chains := make(map[string]*hook.Chain)
	var order []string
	owners := make(map[string]hook.Owner)

	for i, h := range m.Hooks {
		key := h.Target.String()
		chain, ok := chains[key]
		if !ok {
			chain = hook.NewChain(nil, logger.With().Str("target", key).Logger())
			chains[key] = chain
			order = append(order, key)
		}

		owner, ok := owners[h.Owner]
		if !ok {
			owner = hook.NewOwner(h.Owner)
			owners[h.Owner] = owner
		}

		reg, err := hook.NewRegistration(owner, h.Priority, h.Precede, h.Follow)
		if err != nil {
			return nil, fmt.Errorf("hooks[%d] (%s): %w", i, h.Owner, err)
		}
		if err := chain.Add(reg); err != nil {
			return nil, fmt.Errorf("hooks[%d] (%s): %w", i, h.Owner, err)
		}
	}

	plans := make([]TargetPlan, 0, len(order))
	for _, key := range order {
		chain := chains[key]
		p := TargetPlan{
			Target:      key,
			Ambiguities: chain.Ambiguities(),
			Cycles:      chain.Cycles(),
		}
		for _, reg := range chain.Registrations() {
			p.Owners = append(p.Owners, reg.Owner())
			p.Priorities = append(p.Priorities, reg.Priority())
		}
		plans = append(plans, p)
	}
	return plans, nil
}
