package manifest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter"

	"github.com/coral-mesh/hookchain/pkg/hook"
)

// Rule is a hook with its expressions compiled.
type Rule struct {
	Hook Hook

	when   cel.Program
	args   map[int]cel.Program
	ret    cel.Program
	target string
}

// NewEnv declares the variables visible to rule expressions: args (list
// of uint, one per argument word), ret (uint, the original return value)
// and target (string, the target's full name).
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("args", cel.ListType(cel.UintType)),
		cel.Variable("ret", cel.UintType),
		cel.Variable("target", cel.StringType),
	)
}

// Compile compiles the rules of every hook.
func (m *Manifest) Compile() ([]*Rule, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}

	var errs []error
	rules := make([]*Rule, 0, len(m.Hooks))
	for i, h := range m.Hooks {
		r, err := compileRule(env, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("hooks[%d] (%s): %w", i, h.Owner, err))
			continue
		}
		rules = append(rules, r)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rules, nil
}

func compileRule(env *cel.Env, h Hook) (*Rule, error) {
	r := &Rule{Hook: h, args: make(map[int]cel.Program), target: h.Target.String()}

	var err error
	if h.When != "" {
		if r.when, err = compileExpr(env, h.When, cel.BoolType); err != nil {
			return nil, fmt.Errorf("when: %w", err)
		}
	}
	for idx, src := range h.Args {
		if r.args[idx], err = compileExpr(env, src, cel.UintType, cel.IntType); err != nil {
			return nil, fmt.Errorf("args[%d]: %w", idx, err)
		}
	}
	if h.Return != "" {
		if r.ret, err = compileExpr(env, h.Return, cel.UintType, cel.IntType); err != nil {
			return nil, fmt.Errorf("return: %w", err)
		}
	}
	return r, nil
}

func compileExpr(env *cel.Env, src string, want ...*cel.Type) (cel.Program, error) {
	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, iss.Err()
	}

	ok := false
	for _, w := range want {
		if ast.OutputType().IsExactType(w) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%q has type %s, want %s", src, ast.OutputType(), want[0])
	}

	return env.Program(ast)
}

// Callback turns the rule into a hook callback. The expressions see the
// argument values as they were when the callback started; ret is only
// computed, by invoking the original function, if an expression reads it.
func (r *Rule) Callback() hook.Callback {
	return func(ret *hook.ReturnCell, cells []*hook.Cell) error {
		act := newActivation(r.target, ret, cells)

		if r.when != nil {
			out, _, err := r.when.Eval(act)
			if err != nil {
				return fmt.Errorf("when: %w", err)
			}
			if b, ok := out.Value().(bool); !ok || !b {
				return nil
			}
		}

		idxs := make([]int, 0, len(r.args))
		for idx := range r.args {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		for _, idx := range idxs {
			if idx >= len(cells) {
				return fmt.Errorf("args[%d]: target has %d argument words", idx, len(cells))
			}
			v, err := evalWord(r.args[idx], act)
			if err != nil {
				return fmt.Errorf("args[%d]: %w", idx, err)
			}
			cells[idx].Override(v)
		}

		if r.ret != nil {
			v, err := evalWord(r.ret, act)
			if err != nil {
				return fmt.Errorf("return: %w", err)
			}
			ret.Override(v)
		}
		return nil
	}
}

func evalWord(p cel.Program, act interpreter.Activation) (uintptr, error) {
	out, _, err := p.Eval(act)
	if err != nil {
		return 0, err
	}
	switch v := out.Value().(type) {
	case uint64:
		return uintptr(v), nil
	case int64:
		return uintptr(v), nil
	default:
		return 0, fmt.Errorf("unexpected result type %s", out.Type())
	}
}

// activation resolves rule variables on demand.
type activation struct {
	target string
	ret    *hook.ReturnCell
	args   []uint64
}

func newActivation(target string, ret *hook.ReturnCell, cells []*hook.Cell) *activation {
	args := make([]uint64, len(cells))
	for i, c := range cells {
		v, _ := c.Value()
		args[i] = uint64(v)
	}
	return &activation{target: target, ret: ret, args: args}
}

func (a *activation) ResolveName(name string) (any, bool) {
	switch name {
	case "args":
		return a.args, true
	case "target":
		return a.target, true
	case "ret":
		return a.resolveRet(), true
	}
	return nil, false
}

func (a *activation) resolveRet() ref.Val {
	v, err := a.ret.Invoke()
	if err != nil {
		return types.NewErr("invoke original: %v", err)
	}
	return types.Uint(v)
}

func (a *activation) Parent() interpreter.Activation { return nil }
