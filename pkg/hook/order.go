package hook

import (
	"cmp"
)

// Ambiguity records two registrations that asked to precede (or follow)
// each other with the same priority. Their relative order falls back to
// insertion order.
type Ambiguity struct {
	First    string
	Second   string
	Priority int
	// Kind is "precede" or "follow".
	Kind string
}

// Cycle reports owners whose constraints formed a cycle; the order among
// them was forced by priority and insertion order.
type Cycle struct {
	Owners []string
}

type verdict struct {
	order       int
	constrained bool
	ambiguous   string
}

// Compare orders two registrations. A negative result means a runs before
// b. Explicit precede/follow constraints win over priority; a mutual
// constraint is settled by priority, and compares equal when priorities
// match.
func Compare(a, b *Registration) int {
	return compareRegistrations(a, b).order
}

func compareRegistrations(a, b *Registration) verdict {
	an, bn := a.Owner(), b.Owner()

	if a.precedes(bn) {
		if !b.precedes(an) {
			return verdict{order: -1, constrained: true}
		}
		if a.priority != b.priority {
			return verdict{order: cmp.Compare(a.priority, b.priority), constrained: true}
		}
		return verdict{ambiguous: "precede"}
	} else if b.precedes(an) {
		return verdict{order: 1, constrained: true}
	}

	if a.follows(bn) {
		if !b.follows(an) {
			return verdict{order: 1, constrained: true}
		}
		if a.priority != b.priority {
			return verdict{order: cmp.Compare(a.priority, b.priority), constrained: true}
		}
		return verdict{ambiguous: "follow"}
	} else if b.follows(an) {
		return verdict{order: -1, constrained: true}
	}

	return verdict{order: cmp.Compare(a.priority, b.priority)}
}

// orderResult is the outcome of one ordering pass.
type orderResult struct {
	order       []*Registration
	ambiguities []Ambiguity
	cycles      []Cycle
}

// orderRegistrations turns the pairwise relation into a total order.
// Constraint verdicts become edges of a precedence graph; among the
// registrations whose predecessors have all been placed, the one with the
// lowest (priority, insertion position) goes next. If the constraints form
// a cycle the lowest remaining registration is placed regardless of its
// unplaced predecessors. regs must be in insertion order.
func orderRegistrations(regs []*Registration) orderResult {
	n := len(regs)
	res := orderResult{order: make([]*Registration, 0, n)}
	if n == 0 {
		return res
	}

	succ := make([][]int, n)
	indeg := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := compareRegistrations(regs[i], regs[j])
			if v.ambiguous != "" {
				res.ambiguities = append(res.ambiguities, Ambiguity{
					First:    regs[i].Owner(),
					Second:   regs[j].Owner(),
					Priority: regs[i].priority,
					Kind:     v.ambiguous,
				})
				continue
			}
			if !v.constrained {
				continue
			}
			if v.order < 0 {
				succ[i] = append(succ[i], j)
				indeg[j]++
			} else {
				succ[j] = append(succ[j], i)
				indeg[i]++
			}
		}
	}

	placed := make([]bool, n)
	less := func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority < regs[j].priority
		}
		return i < j
	}

	for len(res.order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if placed[i] || indeg[i] > 0 {
				continue
			}
			if next < 0 || less(i, next) {
				next = i
			}
		}

		if next < 0 {
			var cycle Cycle
			for i := 0; i < n; i++ {
				if placed[i] {
					continue
				}
				cycle.Owners = append(cycle.Owners, regs[i].Owner())
				if next < 0 || less(i, next) {
					next = i
				}
			}
			res.cycles = append(res.cycles, cycle)
		}

		placed[next] = true
		res.order = append(res.order, regs[next])
		for _, s := range succ[next] {
			indeg[s]--
		}
	}

	return res
}
