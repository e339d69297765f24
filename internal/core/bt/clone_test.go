package bt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildPatrol(t *testing.T, tr *Tree) {
	t.Helper()
	seq := mustNode(t, tr, "Sequencer", nil)
	rep := mustNode(t, tr, "Repeat", map[string]any{"times": 2})
	inc := mustNode(t, tr, "Increment", map[string]any{"key": "steps"})
	attach(t, tr, tr.Root(), seq)
	attach(t, tr, seq, rep, mustNode(t, tr, "SetValue", map[string]any{"key": "done", "value": true}))
	attach(t, tr, rep, inc)
}

func TestCloneIsIndependent(t *testing.T) {
	tr := New("patrol")
	buildPatrol(t, tr)
	tr.Blackboard().Set("route", []any{"a", "b"})

	c := tr.Clone()
	require.Equal(t, tr.Len(), c.Len())

	original := map[string]bool{}
	for _, n := range tr.Nodes() {
		original[n.ID()] = true
	}
	for _, n := range c.Nodes() {
		require.False(t, original[n.ID()], "clone ids are fresh")
		for _, child := range c.GetChildren(n) {
			require.True(t, c.Owns(child), "clone edges stay inside the clone")
		}
	}

	require.Equal(t, StateRunning, c.Update())
	steps, _ := c.Blackboard().GetInt("steps")
	require.Equal(t, 1, steps)
	require.False(t, tr.Blackboard().Has("steps"))

	route, _ := c.Blackboard().Get("route")
	route.([]any)[0] = "z"
	orig, _ := tr.Blackboard().Get("route")
	require.Equal(t, "a", orig.([]any)[0])
}

func TestCloneChildListsAreIndependent(t *testing.T) {
	tr := New("patrol")
	buildPatrol(t, tr)
	seq := tr.GetChildren(tr.Root())[0]
	before := ids(tr.GetChildren(seq))

	c := tr.Clone()
	cseq := c.GetChildren(c.Root())[0]
	require.Equal(t, "Sequencer", cseq.Variant())

	extra := mustNode(t, c, "Succeed", nil)
	attach(t, c, cseq, extra)
	c.RemoveChild(cseq, c.GetChildren(cseq)[0])
	require.Len(t, c.GetChildren(cseq), 2)
	require.Equal(t, before, ids(tr.GetChildren(seq)))
	require.Equal(t, 5, tr.Len())

	tickN(c, 3)
	for _, n := range tr.Nodes() {
		require.Equal(t, StateRunning, n.State(), n.Variant())
		require.False(t, n.Started(), n.Variant())
		require.Equal(t, 0, n.Cursor(), n.Variant())
	}
	require.Equal(t, StateRunning, tr.State())
}

func TestClonePreservesShape(t *testing.T) {
	tr := New("shape")
	buildPatrol(t, tr)
	c := tr.Clone()

	var a, b []string
	tr.Traverse(func(n *Node, _ int) bool { a = append(a, n.Variant()); return true })
	c.Traverse(func(n *Node, _ int) bool { b = append(b, n.Variant()); return true })
	require.Equal(t, a, b)
}

func TestCloneResetsRuntime(t *testing.T) {
	r := NewDefaultRegistry()
	tr := New("mid", WithRegistry(r))
	script(t, r, "Forever", StateRunning)
	seq := mustNode(t, tr, "Sequencer", nil)
	attach(t, tr, tr.Root(), seq)
	attach(t, tr, seq, mustNode(t, tr, "Succeed", nil), mustNode(t, tr, "Forever", nil))
	tickN(tr, 3)
	require.Equal(t, 1, seq.Cursor())

	c := tr.Clone()
	for _, n := range c.Nodes() {
		require.False(t, n.Started())
		require.Equal(t, 0, n.Cursor())
		require.Equal(t, StateRunning, n.State())
	}
}

func TestCloneRebuildsActions(t *testing.T) {
	r := NewDefaultRegistry()
	first := script(t, r, "Counted", StateSuccess)
	tr := New("actions", WithRegistry(r))
	attach(t, tr, tr.Root(), mustNode(t, tr, "Counted", nil))

	c := tr.Clone()
	require.Equal(t, StateSuccess, c.Update())
	require.Equal(t, 0, first.ticks, "clone owns a separate action instance")
}

func TestDefinitionRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			tr := New("patrol")
			buildPatrol(t, tr)
			tr.Root().SetMeta(map[string]any{"x": 1.5})
			tr.Blackboard().Set("speed", 2.0)

			data, err := tr.Definition().Marshal(format)
			require.NoError(t, err)

			def, err := Decode(bytes.NewReader(data), format)
			require.NoError(t, err)
			loaded, err := FromDefinition(def)
			require.NoError(t, err)

			require.Equal(t, tr.Root().ID(), loaded.Root().ID(), "ids are kept")
			require.Equal(t, tr.Len(), loaded.Len())
			require.Equal(t, 1.5, loaded.Root().Meta()["x"])
			speed, ok := loaded.Blackboard().GetFloat("speed")
			require.True(t, ok)
			require.Equal(t, 2.0, speed)

			require.Equal(t, tickN(tr.Clone(), 4), tickN(loaded, 4))
		})
	}
}

func TestDefinitionValidation(t *testing.T) {
	root := NodeRecord{ID: "r", Variant: "Root", Child: "s"}
	cases := []struct {
		name string
		def  Definition
	}{
		{"duplicate id", Definition{Root: "r", Nodes: []NodeRecord{root, {ID: "s", Variant: "Succeed"}, {ID: "s", Variant: "Fail"}}}},
		{"dangling child", Definition{Root: "r", Nodes: []NodeRecord{root}}},
		{"root not a root", Definition{Root: "s", Nodes: []NodeRecord{{ID: "s", Variant: "Succeed"}}}},
		{"two roots", Definition{Root: "r", Nodes: []NodeRecord{root, {ID: "s", Variant: "Root"}}}},
		{"cycle", Definition{Root: "r", Nodes: []NodeRecord{
			root,
			{ID: "s", Variant: "Sequencer", Children: []string{"i"}},
			{ID: "i", Variant: "Inverter", Child: "s"},
		}}},
		{"missing id", Definition{Nodes: []NodeRecord{{Variant: "Succeed"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromDefinition(&tc.def)
			require.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestFromDefinitionRejectsUnknownVariant(t *testing.T) {
	def := &Definition{Root: "r", Nodes: []NodeRecord{
		{ID: "r", Variant: "Root", Child: "x"},
		{ID: "x", Variant: "Teleport"},
	}}
	_, err := FromDefinition(def)
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestFromDefinitionRejectsMisplacedEdges(t *testing.T) {
	def := &Definition{Root: "r", Nodes: []NodeRecord{
		{ID: "r", Variant: "Root", Child: "a"},
		{ID: "a", Variant: "Succeed", Children: []string{"b"}},
		{ID: "b", Variant: "Fail"},
	}}
	_, err := FromDefinition(def)
	require.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestFromDefinitionCreatesMissingRoot(t *testing.T) {
	def := &Definition{Name: "bare", Nodes: []NodeRecord{{ID: "a", Variant: "Succeed"}}}
	tr, err := FromDefinition(def)
	require.NoError(t, err)
	require.Equal(t, 2, tr.Len(), "root is owned right after loading")

	root := tr.Root().ID()
	first := tr.Definition()
	second := tr.Definition()
	require.Equal(t, 2, tr.Len())
	require.Equal(t, root, first.Root)
	require.Equal(t, first, second)

	c := tr.Clone()
	require.Equal(t, 2, c.Len())
	require.NotEqual(t, root, c.Root().ID())
	require.Equal(t, 2, tr.Len())
}

func TestDecodeYAMLDocument(t *testing.T) {
	doc := `
name: guard
root: r
nodes:
  - id: r
    variant: Root
    child: sel
  - id: sel
    variant: Selector
    children: [alert, idle]
  - id: alert
    variant: IsTrue
    params: {key: intruder}
  - id: idle
    variant: Idle
blackboard:
  intruder: true
`
	def, err := Decode(strings.NewReader(doc), FormatYAML)
	require.NoError(t, err)
	tr, err := FromDefinition(def)
	require.NoError(t, err)
	require.Equal(t, "guard", tr.Name())
	require.Equal(t, StateSuccess, tr.Update())
}

func TestFormatFromPath(t *testing.T) {
	require.Equal(t, FormatJSON, FormatFromPath("trees/guard.JSON"))
	require.Equal(t, FormatYAML, FormatFromPath("trees/guard.yml"))
	require.Equal(t, ".yaml", FormatYAML.Ext())
}
