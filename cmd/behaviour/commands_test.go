package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	config string
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "behaviour.yaml")
	content := "log:\n  level: silent\nstore:\n  dir: " + filepath.Join(dir, "trees") +
		"\nrunner:\n  template: guard\n  tick_interval: 1ms\n  agents: 2\n"
	require.NoError(t, os.WriteFile(config, []byte(content), 0o644))
	return &harness{t: t, config: config, dir: dir}
}

func (h *harness) exec(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustExec(args ...string) string {
	h.t.Helper()
	out, err := h.exec(args...)
	require.NoError(h.t, err, out)
	return out
}

// buildGuard authors guard = Root -> Sequencer -> [Increment, Succeed] and
// returns the sequencer id.
func (h *harness) buildGuard() string {
	h.t.Helper()
	seq := strings.TrimSpace(h.mustExec("edit", "create", "guard", "Sequencer"))
	inc := strings.TrimSpace(h.mustExec("edit", "create", "guard", "Increment", "-p", "key=count", "-p", "by=2"))
	ok := strings.TrimSpace(h.mustExec("edit", "create", "guard", "Succeed", "-m", "x=10"))

	out := h.mustExec("inspect", "guard", "-f", "json")
	root := rootID(h.t, out)
	h.mustExec("edit", "connect", "guard", root, seq)
	h.mustExec("edit", "connect", "guard", seq, inc)
	h.mustExec("edit", "connect", "guard", seq, ok)
	return seq
}

func rootID(t *testing.T, jsonDef string) string {
	t.Helper()
	for _, line := range strings.Split(jsonDef, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, `"root":`) {
			return strings.Trim(strings.TrimPrefix(line, `"root":`), ` ",`)
		}
	}
	t.Fatalf("no root in %s", jsonDef)
	return ""
}

func TestEditAndInspect(t *testing.T) {
	h := newHarness(t)
	seq := h.buildGuard()

	out := h.mustExec("list")
	require.Equal(t, "guard\n", out)

	out = h.mustExec("inspect", "guard", "--ticks", "2")
	require.Contains(t, out, "tick 1: running")
	require.Contains(t, out, "tick 2: success")
	require.Contains(t, out, "  Sequencer "+seq+" [success]")

	out = h.mustExec("inspect", "guard")
	require.Contains(t, out, "variant: Increment")
	require.Contains(t, out, "by: 2")
}

func TestEditDeleteAndMove(t *testing.T) {
	h := newHarness(t)
	seq := h.buildGuard()

	h.mustExec("edit", "move", "guard", seq, "--x", "3", "--y", "4")
	out := h.mustExec("inspect", "guard")
	require.Contains(t, out, "x: 3")

	h.mustExec("edit", "delete", "guard", seq)
	out = h.mustExec("inspect", "guard")
	require.NotContains(t, out, "Sequencer")

	_, err := h.exec("edit", "delete", "guard", "missing")
	require.Error(t, err)
}

func TestEditConnectHonoursPolicy(t *testing.T) {
	t.Setenv("BEHAVIOUR_POLICY_OVERWRITE_SINGLE_CHILD", "false")
	h := newHarness(t)
	a := strings.TrimSpace(h.mustExec("edit", "create", "guard", "Succeed"))
	b := strings.TrimSpace(h.mustExec("edit", "create", "guard", "Fail"))
	root := rootID(t, h.mustExec("inspect", "guard", "-f", "json"))

	h.mustExec("edit", "connect", "guard", root, a)
	_, err := h.exec("edit", "connect", "guard", root, b)
	require.ErrorContains(t, err, "occupied")
}

func TestValidate(t *testing.T) {
	h := newHarness(t)
	h.buildGuard()

	stored := filepath.Join(h.dir, "trees", "guard.yaml")
	out := h.mustExec("validate", stored)
	require.Contains(t, out, "ok (guard, 4 nodes)")

	broken := filepath.Join(h.dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"name":"broken","root":"r","nodes":[]}`), 0o644))
	out, err := h.exec("validate", stored, broken)
	require.Error(t, err)
	require.Contains(t, out, "broken.json:")
}

func TestValidateShippedTree(t *testing.T) {
	h := newHarness(t)
	out := h.mustExec("validate", filepath.Join("..", "..", "trees", "main.yaml"))
	require.Contains(t, out, "ok (main, 5 nodes)")
}

func TestRun(t *testing.T) {
	h := newHarness(t)
	h.buildGuard()

	_, err := h.exec("run", "--ticks", "3", "--agents", "4")
	require.NoError(t, err)
}

func TestRunWithoutTemplate(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec("run", "--ticks", "1")
	require.Error(t, err)
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"key=count", "by=2", "speed=1.5", "loop=true"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"key": "count", "by": 2, "speed": 1.5, "loop": true}, got)

	_, err = parseValues([]string{"novalue"})
	require.Error(t, err)

	got, err = parseValues(nil)
	require.NoError(t, err)
	require.Nil(t, got)
}
