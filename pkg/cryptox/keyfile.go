package cryptox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadMasterKey resolves master key material. An explicit value wins,
// otherwise the key is read from path, which is created with a fresh random
// key on first use.
func LoadMasterKey(value, path string) ([]byte, error) {
	if value != "" {
		return []byte(value), nil
	}
	if path == "" {
		return nil, errors.New("no master key value or key file configured")
	}
	return loadOrCreateKeyFile(path)
}

func loadOrCreateKeyFile(path string) ([]byte, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key := strings.TrimSpace(string(data))
		if key == "" {
			return nil, fmt.Errorf("master key file %q is empty", path)
		}
		return []byte(key), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read master key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	key, err := GenerateToken(TokenSize256)
	if err != nil {
		return nil, err
	}

	// O_EXCL so two processes starting at once don't both write a key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return loadOrCreateKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create master key file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(key); err != nil {
		return nil, fmt.Errorf("failed to write master key file: %w", err)
	}
	return []byte(key), nil
}
