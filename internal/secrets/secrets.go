// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads console credentials from plain-text key files:
// the filename is the key name and the trimmed file contents are the
// value. The console uses a single key, api-token, the bearer token
// required by the API's mutating endpoints when present.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const apiTokenFile = "api-token"

// APIToken returns the console API bearer token stored under dir. A
// missing directory or key file is not an error; APIToken returns "".
// An empty or whitespace-only file counts as absent.
func APIToken(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, apiTokenFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading secret %s: %w", apiTokenFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}
