// Package seed imports a YAML outline into the tree store and keeps it in
// sync with the file.
//
// An outline is a YAML sequence. Each item is either a plain label or a
// mapping with a label and optional children:
//
//	- label: Groceries
//	  children:
//	    - Milk
//	    - label: Fruit
//	      children: [Apples, Pears]
//	- Chores
//
// Files ending in .md are read as Markdown bullet lists instead.
package seed

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/lazytree/internal/treedb"
)

// Item is one outline entry.
type Item struct {
	Label    string `yaml:"label"`
	Children []Item `yaml:"children"`
}

// UnmarshalYAML accepts a scalar label or a label/children mapping.
func (it *Item) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		it.Label = value.Value
		it.Children = nil
		return nil
	}
	type plain Item
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*it = Item(p)
	return nil
}

// Parse decodes an outline.
func Parse(data []byte) ([]treedb.Branch, error) {
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("seed: parse outline: %w", err)
	}
	branches, err := toBranches(items, "")
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return branches, nil
}

func toBranches(items []Item, path string) ([]treedb.Branch, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]treedb.Branch, 0, len(items))
	for i, it := range items {
		label := strings.TrimSpace(it.Label)
		at := fmt.Sprintf("%s[%d]", path, i)
		if label == "" {
			return nil, fmt.Errorf("outline item %s: %w", at, errEmptyLabel)
		}
		children, err := toBranches(it.Children, at)
		if err != nil {
			return nil, err
		}
		out = append(out, treedb.Branch{Label: label, Children: children})
	}
	return out, nil
}

var errEmptyLabel = errors.New("label is required")

// Count returns the number of nodes in branches.
func Count(branches []treedb.Branch) int {
	n := 0
	for _, b := range branches {
		n += 1 + Count(b.Children)
	}
	return n
}
