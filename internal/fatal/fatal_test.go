package fatal

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAbort_WaitsThenKills(t *testing.T) {
	var buf bytes.Buffer
	a := New(zerolog.New(&buf))

	var steps []string
	a.sleep = func(d time.Duration) { steps = append(steps, "sleep "+d.String()) }
	a.kill = func() error {
		steps = append(steps, "kill")
		return nil
	}
	a.exit = func(code int) {
		assert.Equal(t, 134, code)
		steps = append(steps, "exit")
	}

	a.Abort(errors.New("corrupted trampoline"))

	assert.Equal(t, []string{"sleep 5s", "kill", "sleep 100ms", "exit"}, steps)
	assert.Contains(t, buf.String(), "corrupted trampoline")
	assert.Contains(t, buf.String(), "The program will now exit")
}

func TestAbort_KillFailureStillExits(t *testing.T) {
	var buf bytes.Buffer
	a := New(zerolog.New(&buf))
	a.sleep = func(time.Duration) {}
	a.kill = func() error { return errors.New("not permitted") }
	exited := false
	a.exit = func(int) { exited = true }

	a.Abort(errors.New("bad"))

	assert.True(t, exited)
	assert.Contains(t, buf.String(), "Failed to raise SIGABRT")
}
