// Package catalog lists the screening conditions the service knows about.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
	"gopkg.in/yaml.v3"
)

// Entry is one named screening condition.
type Entry struct {
	Index int    `yaml:"index" json:"index"`
	Name  string `yaml:"name" json:"name"`
}

type document struct {
	Conditions []Entry `yaml:"conditions"`
}

// Default is used when no catalog file is configured. The names are the
// criteria sets the brokerage screeners ship with.
var Default = []Entry{
	{Index: 0, Name: "꼬리우상향_바닥2회"},
	{Index: 1, Name: "꼬리우상향_바닥2회_상승장"},
	{Index: 2, Name: "새조건명"},
}

// Catalog is an immutable, ordered list of entries.
type Catalog struct {
	entries []Entry
}

// New validates entries and returns a Catalog holding a copy of them.
func New(entries []Entry) (*Catalog, error) {
	seen := make(map[int]bool, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, apperrors.Config(fmt.Errorf("catalog entry %d has an empty name", i))
		}
		if e.Index < 0 {
			return nil, apperrors.Config(fmt.Errorf("catalog entry %q has negative index %d", e.Name, e.Index))
		}
		if seen[e.Index] {
			return nil, apperrors.Config(fmt.Errorf("duplicate catalog index %d", e.Index))
		}
		seen[e.Index] = true
	}
	return &Catalog{entries: append([]Entry(nil), entries...)}, nil
}

// Load reads a YAML catalog of the form
//
//	conditions:
//	  - index: 0
//	    name: 골든크로스
//
// An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(Default)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Config(fmt.Errorf("read catalog: %w", err))
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Config(fmt.Errorf("parse catalog %s: %w", path, err))
	}
	if len(doc.Conditions) == 0 {
		return nil, apperrors.Config(fmt.Errorf("catalog %s has no conditions", path))
	}
	return New(doc.Conditions)
}

// Entries returns the entries in file order. The slice is a copy.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup returns the entry with the given index.
func (c *Catalog) Lookup(index int) (Entry, error) {
	for _, e := range c.entries {
		if e.Index == index {
			return e, nil
		}
	}
	return Entry{}, apperrors.NotFound("condition", fmt.Sprint(index))
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
