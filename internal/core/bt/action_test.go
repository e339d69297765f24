package bt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackboard(t *testing.T) {
	bb := NewBlackboard()
	bb.Set("name", "guard")
	bb.Set("hp", 42)
	bb.Set("alert", true)
	bb.Set("ratio", 0.5)

	s, ok := bb.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "guard", s)
	i, ok := bb.GetInt("hp")
	assert.True(t, ok)
	assert.Equal(t, 42, i)
	b, ok := bb.GetBool("alert")
	assert.True(t, ok && b)
	f, ok := bb.GetFloat("ratio")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	_, ok = bb.GetInt("name")
	assert.False(t, ok)

	assert.Equal(t, []string{"alert", "hp", "name", "ratio"}, bb.Keys())
	v := bb.Version()
	bb.Delete("hp")
	assert.False(t, bb.Has("hp"))
	assert.Greater(t, bb.Version(), v)

	data, err := json.Marshal(bb)
	require.NoError(t, err)
	restored := NewBlackboard()
	require.NoError(t, json.Unmarshal(data, restored))
	name, _ := restored.GetString("name")
	assert.Equal(t, "guard", name)
}

func TestBlackboardVec3FromDecodedMap(t *testing.T) {
	bb := NewBlackboardFrom(map[string]any{
		"pos": map[string]any{"x": 1, "y": 2.5, "z": 0},
	})
	pos, ok := bb.GetVec3("pos")
	require.True(t, ok)
	require.Equal(t, Vec3{X: 1, Y: 2.5}, pos)
}

func TestWaitUsesClock(t *testing.T) {
	clock := newFakeClock()
	r := NewDefaultRegistry(WithClock(clock.Now))
	tr := New("wait", WithRegistry(r))
	attach(t, tr, tr.Root(), mustNode(t, tr, "Wait", map[string]any{"ms": 100}))

	require.Equal(t, StateRunning, tr.Update())
	clock.Advance(50 * time.Millisecond)
	require.Equal(t, StateRunning, tr.Update())
	clock.Advance(50 * time.Millisecond)
	require.Equal(t, StateSuccess, tr.Update())
}

func TestWaitRejectsNegativeDuration(t *testing.T) {
	tr := New("wait")
	_, err := tr.CreateNode("Wait", map[string]any{"ms": -1})
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestMoveToReachesTarget(t *testing.T) {
	tr := New("move")
	attach(t, tr, tr.Root(), mustNode(t, tr, "MoveTo", map[string]any{"speed": 2.0}))
	tr.Blackboard().Set("position", Vec3{})
	tr.Blackboard().Set("move_to", Vec3{X: 5})

	require.Equal(t, []State{StateRunning, StateRunning, StateSuccess}, tickN(tr, 3))
	pos, _ := tr.Blackboard().GetVec3("position")
	require.Equal(t, Vec3{X: 5}, pos)
}

func TestMoveToFailsWithoutTarget(t *testing.T) {
	tr := New("move")
	attach(t, tr, tr.Root(), mustNode(t, tr, "MoveTo", nil))
	tr.Blackboard().Set("position", Vec3{})
	require.Equal(t, StateFailure, tr.Update())
}

func TestSetValueCopiesParam(t *testing.T) {
	tr := New("set")
	seq := mustNode(t, tr, "Sequencer", nil)
	attach(t, tr, tr.Root(), seq)
	attach(t, tr, seq,
		mustNode(t, tr, "SetValue", map[string]any{"key": "tags", "value": []any{"a"}}),
		mustNode(t, tr, "IsTrue", map[string]any{"key": "missing"}),
	)
	require.Equal(t, []State{StateRunning, StateFailure}, tickN(tr, 2))
	tags, ok := tr.Blackboard().Get("tags")
	require.True(t, ok)
	require.Equal(t, []any{"a"}, tags)
}

func TestIncrementStep(t *testing.T) {
	tr := New("inc")
	attach(t, tr, tr.Root(), mustNode(t, tr, "Increment", map[string]any{"key": "n", "by": 3}))
	tr.Blackboard().Set("n", 1)
	require.Equal(t, StateSuccess, tr.Update())
	n, ok := tr.Blackboard().GetInt("n")
	require.True(t, ok)
	require.Equal(t, 4, n)
}

func TestBuiltinsRequireKey(t *testing.T) {
	tr := New("keys")
	for _, variant := range []string{"SetValue", "Increment", "IsTrue"} {
		_, err := tr.CreateNode(variant, nil)
		assert.ErrorIs(t, err, ErrInvalidParam, variant)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Kind("Succeed")
	require.False(t, ok, "empty registry has no actions")

	require.ErrorIs(t, r.RegisterAction("Sequencer", func(map[string]any) (Action, error) { return nil, nil }), ErrInvalidParam)
	require.ErrorIs(t, r.RegisterAction("", nil), ErrInvalidParam)

	require.NoError(t, r.RegisterAction("Bark", func(map[string]any) (Action, error) {
		return staticAction(StateSuccess), nil
	}))
	kind, ok := r.Kind("Bark")
	require.True(t, ok)
	require.Equal(t, KindAction, kind)
	kind, _ = r.Kind("Retry")
	require.Equal(t, KindDecorator, kind)
	require.Contains(t, r.Variants(), "Bark")
	require.Contains(t, r.Variants(), "Root")
}

func TestNegativeDecoratorLimitRejected(t *testing.T) {
	tr := New("limits")
	_, err := tr.CreateNode("Retry", map[string]any{"max": -2})
	require.ErrorIs(t, err, ErrInvalidParam)
}

func TestStateText(t *testing.T) {
	for _, st := range []State{StateRunning, StateSuccess, StateFailure} {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		require.Equal(t, st, back)
	}
	_, err := ParseState("paused")
	require.ErrorIs(t, err, ErrInvalidState)
}
