package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCaptureLogger(t *testing.T) {
	logger, buf := NewCaptureLogger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug().Msg("dispatch")
		}()
	}
	wg.Wait()

	assert.Contains(t, buf.String(), `"message":"dispatch"`)
}
