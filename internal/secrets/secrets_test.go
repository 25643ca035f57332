// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  string
	}{
		{
			name: "reads the token file and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeToken(t, dir, "  tok_abc123  \n")
				return dir
			},
			want: "tok_abc123",
		},
		{
			name: "nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: "",
		},
		{
			name: "missing token file",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: "",
		},
		{
			name: "whitespace-only file counts as absent",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeToken(t, dir, "   \n\t  ")
				return dir
			},
			want: "",
		},
		{
			name: "other key files are ignored",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(
					filepath.Join(dir, "backup-token"), []byte("tok_other"), 0o644))
				return dir
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := APIToken(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPITokenUnreadableEntry(t *testing.T) {
	// A directory at the key path is unreadable as a file.
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "api-token"), 0o755))

	_, err := APIToken(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api-token")
}

func writeToken(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api-token"), []byte(content), 0o644))
}
