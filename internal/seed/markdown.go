package seed

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/lazytree/internal/treedb"
)

// markdownFrontmatter is the optional YAML header of a Markdown outline.
type markdownFrontmatter struct {
	// Root nests every list item under a single node with this label.
	Root string `yaml:"root"`
}

// ParseMarkdown decodes a Markdown bullet list outline. Nesting follows the
// indentation of "-", "*" or "+" items; every other line is ignored.
func ParseMarkdown(data []byte) ([]treedb.Branch, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	type level struct {
		indent int
		branch *treedb.Branch
	}
	var (
		root  treedb.Branch
		stack = []level{{indent: -1, branch: &root}}
	)
	for i, line := range strings.Split(body, "\n") {
		line = strings.ReplaceAll(strings.TrimRight(line, " \t\r"), "\t", "    ")
		trimmed := strings.TrimLeft(line, " ")
		label, ok := bulletLabel(trimmed)
		if !ok {
			continue
		}
		if label == "" {
			return nil, fmt.Errorf("seed: line %d: %w", i+1, errEmptyLabel)
		}
		indent := len(line) - len(trimmed)
		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].branch
		parent.Children = append(parent.Children, treedb.Branch{Label: label})
		stack = append(stack, level{indent: indent, branch: &parent.Children[len(parent.Children)-1]})
	}

	if fm.Root != "" {
		return []treedb.Branch{{Label: strings.TrimSpace(fm.Root), Children: root.Children}}, nil
	}
	return root.Children, nil
}

func bulletLabel(s string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(s, marker) {
			return strings.TrimSpace(s[len(marker):]), true
		}
	}
	if s == "-" || s == "*" || s == "+" {
		return "", true
	}
	return "", false
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without a closing delimiter the whole input is body.
func splitFrontmatter(data []byte) (markdownFrontmatter, string, error) {
	const delim = "---"
	var fm markdownFrontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), nil
	}

	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return fm, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, string(rest[idx+1+len(delim):]), nil
}

// parserFor picks the outline format from the file extension.
func parserFor(path string) func([]byte) ([]treedb.Branch, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return ParseMarkdown
	default:
		return Parse
	}
}
