package binder

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolBinder_Code(t *testing.T) {
	b := openSelf(t)
	assert.Equal(t, runtime.GOARCH, b.Arch())

	fn, err := b.Function(pkgPath + ".OpenSelf")
	require.NoError(t, err)

	code, err := b.Code(fn, 32)
	require.NoError(t, err)
	assert.Len(t, code, 32)

	_, err = b.Code(&Function{Name: "nowhere", Address: 0}, 16)
	require.ErrorIs(t, err, ErrNoCode)
}

func TestCode_ClampsToFunctionSize(t *testing.T) {
	b := &SymbolBinder{sections: []section{{name: ".text", addr: 0x1000, size: 0x100, r: zeros{}}}}

	code, err := b.Code(&Function{Name: "tiny", Address: 0x1000, Size: 4}, 32)
	require.NoError(t, err)
	assert.Len(t, code, 4)

	code, err = b.Code(&Function{Name: "tail", Address: 0x10f8}, 32)
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

type zeros struct{}

func (zeros) ReadAt(p []byte, _ int64) (int, error) {
	clear(p)
	return len(p), nil
}
