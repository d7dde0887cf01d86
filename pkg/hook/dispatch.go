package hook

import (
	"fmt"
	"strconv"
)

// Invoker calls the original implementation of a target.
type Invoker func(args []uintptr) (uintptr, error)

// Dispatch runs one native call through the chain. With no registrations
// it calls original directly and returns its result untouched. Otherwise
// it builds one cell per argument word and a lazily-invoked return cell,
// runs every callback in order, and resolves the return word as pending
// override, else current value, else the memoized original result.
//
// Only a critical callback failure or a failed lazy invocation during final
// resolution is returned as an error; ordinary callback failures are logged
// and recovered.
func (c *Chain) Dispatch(args []uintptr, original Invoker) (uintptr, error) {
	c.dispatches.Add(1)

	regs := c.snapshot()
	if len(regs) == 0 {
		c.passThrough.Add(1)
		c.originalCalls.Add(1)
		return original(args)
	}

	cells := c.argCells(args)
	ret := newReturnCell(c.returnType(), func() (uintptr, error) {
		words := make([]uintptr, len(cells))
		for i, cell := range cells {
			words[i], _ = cell.Value()
		}
		c.originalCalls.Add(1)
		return original(words)
	})

	for _, reg := range regs {
		for _, cb := range reg.snapshot() {
			invoked := ret.Invoked()
			err := c.runCallback(cb, ret, cells)
			if err == nil {
				ret.commit()
				for _, cell := range cells {
					cell.commit()
				}
				continue
			}

			ret.discard()
			for _, cell := range cells {
				cell.discard()
			}

			derr := &DispatchError{Target: targetName(c.target), Owner: reg.Owner(), Err: err}
			if IsCritical(err) {
				c.logger.Error().Err(derr).Str("owner", reg.Owner()).Msg("Critical failure in hook callback")
				return 0, derr
			}
			c.failures.Add(1)
			c.logger.Error().Err(derr).Str("owner", reg.Owner()).Msg("Hook callback failed; discarding its overrides")
			if !invoked && ret.Invoked() {
				c.logger.Warn().
					Str("owner", reg.Owner()).
					Msg("Original ran with arguments from a failed callback; its result is kept")
			}
		}
	}

	return ret.Resolve()
}

// runCallback converts a panic into an error. A panic carrying a
// CriticalError stays critical.
func (c *Chain) runCallback(cb Callback, ret *ReturnCell, args []*Cell) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *CriticalError:
			err = v
		case error:
			err = fmt.Errorf("callback panicked: %w", v)
		default:
			err = fmt.Errorf("callback panicked: %v", v)
		}
	}()
	return cb(ret, args)
}

func (c *Chain) argCells(args []uintptr) []*Cell {
	cells := make([]*Cell, len(args))
	var params []string
	instance := "instance"
	if c.target != nil {
		params = c.target.params
		if c.target.owner != "" {
			instance = c.target.owner
		}
	}

	last := len(args) - 1
	for i, v := range args {
		switch {
		case i == 0:
			cells[i] = newArgCell(i, "instance", instance, v)
		case i == last && last > 0:
			cells[i] = newArgCell(i, "method", "method", v)
		default:
			typ := "word"
			if i-1 < len(params) {
				typ = params[i-1]
			}
			cells[i] = newArgCell(i, "p"+strconv.Itoa(i), typ, v)
		}
	}
	return cells
}

func (c *Chain) returnType() string {
	if c.target == nil || c.target.ret == "" {
		return "word"
	}
	return c.target.ret
}
