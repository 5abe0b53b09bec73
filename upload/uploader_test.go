package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalUploaderStoresAndNames(t *testing.T) {
	src := filepath.Join(t.TempDir(), "orders_123.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o644))

	root := t.TempDir()
	u := NewLocalUploader(root, "file://exports/", zap.NewNop().Sugar())

	system, url, err := u.Upload(src, "orders.csv", "test-app")
	require.NoError(t, err)
	assert.Equal(t, "local", system)
	assert.Equal(t, "file://exports/test-app/orders.csv", url)

	data, err := os.ReadFile(filepath.Join(root, "test-app", "orders.csv"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n1,2\n"), data)
}

func TestLocalUploaderMissingSource(t *testing.T) {
	u := NewLocalUploader(t.TempDir(), "file://exports", zap.NewNop().Sugar())
	_, _, err := u.Upload(filepath.Join(t.TempDir(), "nope.csv"), "nope.csv", "app")
	assert.Error(t, err)
}
