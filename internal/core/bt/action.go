package bt

import (
	"fmt"
	"time"

	"github.com/zeusync/behaviour/internal/core/observability/log"
)

// Action is the leaf behaviour behind an action node. Each node instance owns
// its Action, so implementations may keep per-activation state in fields.
//
// Start runs once when the node is entered, Update once per tick while it is
// active, Stop once after Update reports a terminal state or the node is
// aborted. Update must not block: long work reports Running across ticks.
type Action interface {
	Start(bb *Blackboard)
	Update(bb *Blackboard) State
	Stop(bb *Blackboard)
}

// ActionFunc wraps a function as a stateless Action.
type ActionFunc func(bb *Blackboard) State

func (f ActionFunc) Start(*Blackboard)           {}
func (f ActionFunc) Update(bb *Blackboard) State { return f(bb) }
func (f ActionFunc) Stop(*Blackboard)            {}

func staticAction(st State) ActionFunc {
	return func(*Blackboard) State { return st }
}

func conditionAction(ok func(*Blackboard) bool) Action {
	return ActionFunc(func(bb *Blackboard) State {
		if ok(bb) {
			return StateSuccess
		}
		return StateFailure
	})
}

// Wait reports Running until Duration has elapsed since the node was entered.
type Wait struct {
	Duration time.Duration
	clock    func() time.Time
	start    time.Time
}

func NewWait(d time.Duration, clock func() time.Time) *Wait {
	if clock == nil {
		clock = time.Now
	}
	return &Wait{Duration: d, clock: clock}
}

func (w *Wait) Start(*Blackboard) { w.start = w.clock() }

func (w *Wait) Update(*Blackboard) State {
	if w.clock().Sub(w.start) >= w.Duration {
		return StateSuccess
	}
	return StateRunning
}

func (w *Wait) Stop(*Blackboard) { w.start = time.Time{} }

// MoveTo steps the position stored under PositionKey toward the target under
// TargetKey by at most Speed per tick.
type MoveTo struct {
	PositionKey string
	TargetKey   string
	Speed       float64
	Tolerance   float64
}

func NewMoveTo(positionKey, targetKey string, speed, tolerance float64) *MoveTo {
	return &MoveTo{PositionKey: positionKey, TargetKey: targetKey, Speed: speed, Tolerance: tolerance}
}

func (m *MoveTo) Start(*Blackboard) {}

func (m *MoveTo) Update(bb *Blackboard) State {
	pos, ok := bb.GetVec3(m.PositionKey)
	if !ok {
		return StateFailure
	}
	target, ok := bb.GetVec3(m.TargetKey)
	if !ok {
		return StateFailure
	}
	dist := pos.Distance(target)
	if dist <= m.Tolerance {
		return StateSuccess
	}
	if dist <= m.Speed {
		bb.Set(m.PositionKey, target)
		return StateSuccess
	}
	step := target.Sub(pos).Scale(m.Speed / dist)
	bb.Set(m.PositionKey, pos.Add(step))
	return StateRunning
}

func (m *MoveTo) Stop(*Blackboard) {}

// RegisterBuiltins registers the stock action set on r.
func RegisterBuiltins(r *Registry) {
	mustRegister(r, "Succeed", func(map[string]any) (Action, error) {
		return staticAction(StateSuccess), nil
	})
	mustRegister(r, "Fail", func(map[string]any) (Action, error) {
		return staticAction(StateFailure), nil
	})
	mustRegister(r, "Idle", func(map[string]any) (Action, error) {
		return staticAction(StateRunning), nil
	})

	mustRegister(r, "Log", func(params map[string]any) (Action, error) {
		msg, _ := params["msg"].(string)
		logger := r.Logger()
		return ActionFunc(func(bb *Blackboard) State {
			logger.Info(msg, log.Uint64("blackboard_version", bb.Version()))
			return StateSuccess
		}), nil
	})

	mustRegister(r, "SetValue", func(params map[string]any) (Action, error) {
		key, _ := params["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("%w: SetValue requires key", ErrInvalidParam)
		}
		val := deepCopy(params["value"])
		return ActionFunc(func(bb *Blackboard) State {
			bb.Set(key, deepCopy(val))
			return StateSuccess
		}), nil
	})

	mustRegister(r, "Increment", func(params map[string]any) (Action, error) {
		key, _ := params["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("%w: Increment requires key", ErrInvalidParam)
		}
		by, _ := intParam(params, "by", 1)
		return ActionFunc(func(bb *Blackboard) State {
			v, _ := bb.GetInt(key)
			bb.Set(key, v+by)
			return StateSuccess
		}), nil
	})

	mustRegister(r, "IsTrue", func(params map[string]any) (Action, error) {
		key, _ := params["key"].(string)
		if key == "" {
			return nil, fmt.Errorf("%w: IsTrue requires key", ErrInvalidParam)
		}
		return conditionAction(func(bb *Blackboard) bool {
			v, ok := bb.GetBool(key)
			return ok && v
		}), nil
	})

	mustRegister(r, "Wait", func(params map[string]any) (Action, error) {
		ms, _ := intParam(params, "ms", 0)
		if ms < 0 {
			return nil, fmt.Errorf("%w: Wait ms must be >= 0", ErrInvalidParam)
		}
		return NewWait(time.Duration(ms)*time.Millisecond, r.Clock()), nil
	})

	mustRegister(r, "MoveTo", func(params map[string]any) (Action, error) {
		pos, _ := params["position"].(string)
		if pos == "" {
			pos = "position"
		}
		target, _ := params["target"].(string)
		if target == "" {
			target = "move_to"
		}
		speed, _ := floatParam(params, "speed", 1)
		tolerance, _ := floatParam(params, "tolerance", 0.01)
		if speed <= 0 {
			return nil, fmt.Errorf("%w: MoveTo speed must be > 0", ErrInvalidParam)
		}
		return NewMoveTo(pos, target, speed, tolerance), nil
	})
}

func mustRegister(r *Registry, name string, f ActionFactory) {
	if err := r.RegisterAction(name, f); err != nil {
		panic(err)
	}
}

func intParam(params map[string]any, key string, def int) (int, bool) {
	v, ok := params[key]
	if !ok {
		return def, false
	}
	i, ok := toInt(v)
	if !ok {
		return def, false
	}
	return i, true
}

func floatParam(params map[string]any, key string, def float64) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return def, false
	}
	f, ok := toFloat(v)
	if !ok {
		return def, false
	}
	return f, true
}

func boolParam(params map[string]any, key string, def bool) bool {
	v, ok := params[key].(bool)
	if !ok {
		return def
	}
	return v
}
