package bt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the persisted layout of a tree: the root id and a flat list of
// node records whose edges are ids.
type Definition struct {
	Name       string         `json:"name" yaml:"name"`
	Root       string         `json:"root" yaml:"root"`
	Nodes      []NodeRecord   `json:"nodes" yaml:"nodes"`
	Blackboard map[string]any `json:"blackboard,omitempty" yaml:"blackboard,omitempty"`
}

// NodeRecord is one node. Child is used by Root and decorators, Children by
// composites. Meta is presentation data the engine carries but never reads.
type NodeRecord struct {
	ID       string         `json:"id" yaml:"id"`
	Variant  string         `json:"variant" yaml:"variant"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Child    string         `json:"child,omitempty" yaml:"child,omitempty"`
	Children []string       `json:"children,omitempty" yaml:"children,omitempty"`
	Meta     map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Format is a Definition encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the encoding from a file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Ext is the file extension for f.
func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".yaml"
}

// Definition snapshots the tree structure (not its runtime state).
func (t *Tree) Definition() *Definition {
	root := t.Root()
	def := &Definition{
		Name:       t.name,
		Root:       root.id,
		Nodes:      make([]NodeRecord, 0, len(t.nodes)),
		Blackboard: t.blackboard.Snapshot(),
	}
	if len(def.Blackboard) == 0 {
		def.Blackboard = nil
	}
	for _, n := range t.nodes {
		rec := NodeRecord{
			ID:      n.id,
			Variant: n.variant,
			Params:  copyParams(n.params),
			Meta:    copyParams(n.meta),
		}
		switch n.kind {
		case KindRoot, KindDecorator:
			rec.Child = n.child
		case KindComposite:
			rec.Children = append([]string(nil), n.children...)
		}
		def.Nodes = append(def.Nodes, rec)
	}
	return def
}

// Validate checks the structure without resolving variants: unique ids, a
// single Root record matching Root, edges that resolve, and no cycles.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	byID := make(map[string]*NodeRecord, len(d.Nodes))
	roots := 0
	for i := range d.Nodes {
		rec := &d.Nodes[i]
		if rec.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidDefinition, i)
		}
		if _, dup := byID[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidDefinition, rec.ID)
		}
		byID[rec.ID] = rec
		if rec.Variant == "Root" {
			roots++
		}
	}
	if roots > 1 {
		return fmt.Errorf("%w: %d root nodes", ErrInvalidDefinition, roots)
	}
	if d.Root != "" {
		rec, ok := byID[d.Root]
		if !ok {
			return fmt.Errorf("%w: root %s not found", ErrInvalidDefinition, d.Root)
		}
		if rec.Variant != "Root" {
			return fmt.Errorf("%w: root %s is a %s", ErrInvalidDefinition, d.Root, rec.Variant)
		}
	} else if roots > 0 {
		return fmt.Errorf("%w: root record present but root id empty", ErrInvalidDefinition)
	}

	for _, rec := range d.Nodes {
		for _, id := range recordEdges(rec) {
			child, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s references missing node %s", ErrInvalidDefinition, rec.ID, id)
			}
			if child.Variant == "Root" {
				return fmt.Errorf("%w: %s references the root", ErrInvalidDefinition, rec.ID)
			}
		}
	}

	// colour marking DFS: 1 on stack, 2 done
	marks := make(map[string]int, len(d.Nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case 1:
			return fmt.Errorf("%w: cycle through %s", ErrInvalidDefinition, id)
		case 2:
			return nil
		}
		marks[id] = 1
		for _, c := range recordEdges(*byID[id]) {
			if err := visit(c); err != nil {
				return err
			}
		}
		marks[id] = 2
		return nil
	}
	for _, rec := range d.Nodes {
		if err := visit(rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func recordEdges(rec NodeRecord) []string {
	out := make([]string, 0, len(rec.Children)+1)
	if rec.Child != "" {
		out = append(out, rec.Child)
	}
	return append(out, rec.Children...)
}

// FromDefinition builds a tree from def, keeping its ids. Unknown variants,
// bad params and structural errors are rejected.
func FromDefinition(def *Definition, opts ...Option) (*Tree, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	t := New(def.Name, opts...)
	if t.blackboard.Version() == 0 && len(def.Blackboard) > 0 {
		t.blackboard = NewBlackboardFrom(def.Blackboard)
	}

	for _, rec := range def.Nodes {
		n, err := t.registry.build(rec.ID, rec.Variant, rec.Params)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", rec.ID, err)
		}
		n.meta = copyParams(rec.Meta)
		switch n.kind {
		case KindRoot, KindDecorator:
			n.child = rec.Child
			if len(rec.Children) > 0 {
				return nil, fmt.Errorf("%w: %s %s cannot have children", ErrInvalidDefinition, rec.Variant, rec.ID)
			}
		case KindComposite:
			n.children = append([]string(nil), rec.Children...)
			if rec.Child != "" {
				return nil, fmt.Errorf("%w: composite %s uses children, not child", ErrInvalidDefinition, rec.ID)
			}
		case KindAction:
			if rec.Child != "" || len(rec.Children) > 0 {
				return nil, fmt.Errorf("%w: action %s cannot have children", ErrInvalidDefinition, rec.ID)
			}
		}
		t.insert(n)
	}
	t.root = def.Root
	// a rootless definition gets its root now, so readers never create one
	t.Root()
	return t, nil
}

// Decode reads a definition in the given format.
func Decode(r io.Reader, format Format) (*Definition, error) {
	var def Definition
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&def); err != nil {
			return nil, fmt.Errorf("decode json definition: %w", err)
		}
	default:
		if err := yaml.NewDecoder(r).Decode(&def); err != nil {
			return nil, fmt.Errorf("decode yaml definition: %w", err)
		}
	}
	return &def, nil
}

// Encode writes the definition in the given format.
func (d *Definition) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	}
}

// Marshal is Encode into a byte slice.
func (d *Definition) Marshal(format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
