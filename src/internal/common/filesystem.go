package common

import (
	"fmt"
	"os"
)

// ReadDocumentFile reads a file about to be opened as a document. The content is
// returned as stored; a directory is refused with an error naming the path.
func ReadDocumentFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open %s as a document: is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// IsRegularFile reports whether path exists and is not a directory
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
