package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseFrontmatter splits a "---\n...\n---\n" YAML header from the
// Markdown body that follows it. Returns an empty map and the whole
// content unchanged if no frontmatter block is present or it fails to
// parse.
func parseFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---") {
		return map[string]any{}, content
	}

	end := strings.Index(content[3:], "---")
	if end == -1 {
		return map[string]any{}, content
	}
	end += 3

	yamlStr := strings.TrimSpace(content[3:end])
	body := strings.TrimLeft(content[end+3:], "\n")

	var data map[string]any
	if err := yaml.Unmarshal([]byte(yamlStr), &data); err != nil {
		return map[string]any{}, content
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, body
}

// renderFrontmatter renders data as a "---\n{yaml}---\n\n" block.
func renderFrontmatter(data map[string]any) (string, error) {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("knowledge: rendering frontmatter: %w", err)
	}
	return "---\n" + string(raw) + "---\n\n", nil
}

// writeAtomic writes data to path via a temp file in the same
// directory followed by rename, so a reader never observes a
// partially-written index.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("knowledge: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("knowledge: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("knowledge: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("knowledge: renaming into place: %w", err)
	}
	return nil
}
