package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestMarkKeepsMessage(t *testing.T) {
	sentinel := New("recoverable")
	err := Mark(Newf("disk full: %s", "/tmp/x"), sentinel)

	assert.Equal(t, "disk full: /tmp/x", err.Error())
	assert.True(t, Is(err, sentinel))
}

func TestIsThroughFmtWrap(t *testing.T) {
	sentinel := New("sentinel")
	err := fmt.Errorf("outer: %w", sentinel)
	assert.True(t, Is(err, sentinel))
}
