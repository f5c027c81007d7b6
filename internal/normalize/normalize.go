// Package normalize converts change-description files into the structured
// JSON form the Insights fileChanges endpoint expects. Input is either a
// flat JSON change list, a YAML change list, or an already-structured JSON
// document (which passes through untouched).
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sajagana/pcvgate/pkg/models"
)

var ErrEmptyChangeList = errors.New("change list is empty")

// IsJSON reports whether b is a valid JSON document.
func IsJSON(b []byte) bool {
	return json.Valid(b)
}

// ParseChangeList decodes b as a JSON change list, falling back to YAML.
func ParseChangeList(b []byte) (models.ChangeList, error) {
	var changes models.ChangeList
	if IsJSON(b) {
		if err := json.Unmarshal(b, &changes); err != nil {
			return nil, fmt.Errorf("decoding JSON change list: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(b, &changes); err != nil {
			return nil, fmt.Errorf("decoding YAML change list: %w", err)
		}
	}
	if len(changes) == 0 {
		return nil, ErrEmptyChangeList
	}
	return changes, nil
}

// Node is one object in the structured configuration tree.
type Node struct {
	Class      string
	Attributes map[string]any
	Children   []*Node
}

// MarshalJSON emits the fabric's native nesting: {class: {attributes, children}}.
func (n *Node) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"attributes": n.Attributes,
	}
	if len(n.Children) > 0 {
		body["children"] = n.Children
	}
	return json.Marshal(map[string]any{n.Class: body})
}

// treeBuilder indexes constructed nodes by dn. The index is owned by a
// single ConstructTree call and discarded with it.
type treeBuilder struct {
	index map[string]*Node
	root  *Node
}

// ConstructTree builds a dn-keyed hierarchy from a flat change list.
// Entries are attached under their nearest known ancestor; objects whose
// parents are not part of the change set hang off the policy root.
func ConstructTree(changes models.ChangeList) (*Node, error) {
	if len(changes) == 0 {
		return nil, ErrEmptyChangeList
	}

	b := &treeBuilder{
		index: make(map[string]*Node, len(changes)),
		root:  &Node{Class: "polUni", Attributes: map[string]any{"dn": "uni", "status": ""}},
	}
	b.index["uni"] = b.root

	nodes := make([]*Node, 0, len(changes))
	dns := make([]string, 0, len(changes))
	for i, change := range changes {
		node, dn, err := parseChange(change)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		if _, ok := b.index[dn]; ok {
			return nil, fmt.Errorf("change %d: duplicate dn %q", i, dn)
		}
		b.index[dn] = node
		nodes = append(nodes, node)
		dns = append(dns, dn)
	}

	// Attach shallow objects first so deeper ones find their parents.
	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return strings.Count(dns[order[i]], "/") < strings.Count(dns[order[j]], "/")
	})

	for _, i := range order {
		parent := b.nearestAncestor(dns[i])
		parent.Children = append(parent.Children, nodes[i])
	}

	return b.root, nil
}

func (b *treeBuilder) nearestAncestor(dn string) *Node {
	for {
		idx := strings.LastIndex(dn, "/")
		if idx < 0 {
			return b.root
		}
		dn = dn[:idx]
		if node, ok := b.index[dn]; ok {
			return node
		}
	}
}

func parseChange(change map[string]any) (*Node, string, error) {
	if len(change) != 1 {
		return nil, "", fmt.Errorf("expected a single class key, got %d", len(change))
	}
	for class, raw := range change {
		body, ok := raw.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("class %q: body is not an object", class)
		}
		attrs, ok := body["attributes"].(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("class %q: missing attributes", class)
		}
		dn, _ := attrs["dn"].(string)
		if dn == "" {
			return nil, "", fmt.Errorf("class %q: missing dn attribute", class)
		}
		return &Node{Class: class, Attributes: attrs}, dn, nil
	}
	return nil, "", fmt.Errorf("empty change entry")
}

// WriteStructured serializes the tree to path as indented JSON.
func WriteStructured(tree *Node, path string) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding structured data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing structured data: %w", err)
	}
	return nil
}

// NormalizeChangeFile prepares a change file for upload. Flat change lists
// (JSON or YAML) are converted to the structured tree form and written to a
// sibling file derived from the original name; already-structured JSON is
// returned unchanged. The returned path is the one to upload.
func NormalizeChangeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading change file: %w", err)
	}

	if IsJSON(data) {
		var probe any
		if err := json.Unmarshal(data, &probe); err != nil {
			return "", fmt.Errorf("decoding change file: %w", err)
		}
		if _, isList := probe.([]any); !isList {
			// Already structured; upload as-is.
			return path, nil
		}
	}

	changes, err := ParseChangeList(data)
	if err != nil {
		return "", err
	}
	tree, err := ConstructTree(changes)
	if err != nil {
		return "", err
	}

	normalized := derivedPath(path)
	if err := WriteStructured(tree, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// derivedPath maps input.yaml -> input.normalized.json alongside the original.
func derivedPath(path string) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return stem + ".normalized.json"
}
