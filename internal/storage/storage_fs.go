// Package storage writes run reports to the local filesystem.
package storage

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FSStorage struct {
	Root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{Root: root}
}

// WriteJSON stores v, indented, at destPath below Root.
func (s *FSStorage) WriteJSON(ctx context.Context, destPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", destPath, err)
	}
	return s.writeFile(destPath, append(data, '\n'))
}

// WriteXML stores v, indented and with the XML header, at destPath below Root.
func (s *FSStorage) WriteXML(ctx context.Context, destPath string, v any) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", destPath, err)
	}
	content := append([]byte(xml.Header), data...)
	return s.writeFile(destPath, append(content, '\n'))
}

// WriteLines stores one line per entry at destPath below Root.
func (s *FSStorage) WriteLines(ctx context.Context, destPath string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return s.writeFile(destPath, []byte(b.String()))
}

func (s *FSStorage) Path(destPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(destPath))
}

func (s *FSStorage) writeFile(destPath string, content []byte) error {
	return s.writeFileAbsolute(s.Path(destPath), content)
}

func (s *FSStorage) writeFileAbsolute(fullPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// Remove any existing file or symlink so os.WriteFile does not
	// follow a stale symlink.
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
