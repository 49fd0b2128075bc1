// Package mimemap implements the MIME Translator (spec §4.1): the table
// that decides whether a remote MIME type is a native Google document that
// needs exporting, and if so, which export MIME type and shadow-cache file
// extension to use.
package mimemap

import (
	_ "embed"
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

//go:embed default_types.yaml
var defaultTypesYAML []byte

// entry is one row of the translation table.
type entry struct {
	Export string `yaml:"export"`
	Ext    string `yaml:"ext"`
}

// Table is the loaded MIME translation table. The zero value is not
// usable; construct one with Default or Load.
type Table struct {
	entries map[string]entry
}

func parseEntries(data []byte) (map[string]entry, error) {
	var raw map[string]entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing mime table: %w", err)
	}
	return raw, nil
}

// Default returns the built-in translation table (the four Google
// Workspace MIME types named in spec §6.3), with no user overrides.
func Default() (*Table, error) {
	entries, err := parseEntries(defaultTypesYAML)
	if err != nil {
		return nil, err
	}
	return &Table{entries: entries}, nil
}

// Load reads path (spec §6.2's types.yaml) and merges it over the built-in
// defaults, the same layering common.LoadConfig uses for the main config
// file: user entries win, but entries the user doesn't mention still fall
// back to the shipped defaults. If path does not exist, the defaults are
// written there first so the file is always present and editable
// afterward.
func Load(path string) (*Table, error) {
	defaults, err := parseEntries(defaultTypesYAML)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, defaultTypesYAML, 0644); werr != nil {
			return nil, fmt.Errorf("writing default mime table to %q: %w", path, werr)
		}
		return &Table{entries: defaults}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading mime table %q: %w", path, err)
	}

	user, err := parseEntries(data)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&user, defaults); err != nil {
		return nil, fmt.Errorf("merging mime table: %w", err)
	}
	return &Table{entries: user}, nil
}

// Translate reports whether mime is a native document requiring export,
// and if so returns the export MIME type and the shadow-cache file
// extension to append to its name (invariant I6). ok is false for every
// ordinary, already-downloadable MIME type, including FolderMIME.
func (t *Table) Translate(mime string) (exportMIME, ext string, ok bool) {
	if t == nil {
		return "", "", false
	}
	e, found := t.entries[mime]
	if !found {
		return "", "", false
	}
	return e.Export, e.Ext, true
}

// IsNative reports whether mime names one of the translated Google
// Workspace document types.
func (t *Table) IsNative(mime string) bool {
	_, _, ok := t.Translate(mime)
	return ok
}
