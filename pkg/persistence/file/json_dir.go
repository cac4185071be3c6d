package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var errInvalidID = errors.New("invalid identifier")

// jsonDir stores one JSON document per entity under root/name/{id}.json.
type jsonDir struct {
	root string
	name string
}

func (d jsonDir) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return filepath.Join(d.root, d.name, id+".json"), nil
}

// read decodes the document into target. It reports false when the file does not exist.
func (d jsonDir) read(id string, target any) (bool, error) {
	filePath, err := d.path(id)
	if err != nil {
		return false, err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", d.name, id, err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", d.name, id, err)
	}

	return true, nil
}

// write replaces the document atomically through a temporary file.
func (d jsonDir) write(id string, value any) error {
	filePath, err := d.path(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", d.name, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", d.name, id, err)
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", d.name, id, err)
	}

	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", d.name, id, err)
	}

	return nil
}

// ids lists stored document ids in lexical order.
func (d jsonDir) ids() ([]string, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(d.root, d.name)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.name, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	sort.Strings(ids)

	return ids, nil
}
