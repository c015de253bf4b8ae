package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "directory", path: dir, want: false},
		{name: "missing", path: filepath.Join(dir, "missing"), want: false},
		{name: "regular file", path: filepath.Join(dir, "present"), want: true},
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "present"), nil, 0o600))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRegularFile(tt.path))
		})
	}
}
