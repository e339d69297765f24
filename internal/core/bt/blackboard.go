package bt

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"
)

// Blackboard is the shared state record of one tree instance. Nodes receive it
// through Update and never keep a reference to it.
//
// The tick itself is single-writer; the lock exists so host goroutines can read
// between ticks without racing the runner.
type Blackboard struct {
	mu      sync.RWMutex
	data    map[string]any
	version uint64
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{data: make(map[string]any)}
}

// NewBlackboardFrom seeds a blackboard with a deep copy of values.
func NewBlackboardFrom(values map[string]any) *Blackboard {
	bb := NewBlackboard()
	for k, v := range values {
		bb.data[k] = deepCopy(v)
	}
	return bb
}

// Set stores a value.
func (bb *Blackboard) Set(key string, value any) {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	bb.data[key] = value
	bb.version++
}

// Get retrieves a value.
func (bb *Blackboard) Get(key string) (any, bool) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	value, exists := bb.data[key]
	return value, exists
}

// GetString retrieves a string value.
func (bb *Blackboard) GetString(key string) (string, bool) {
	value, exists := bb.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// GetInt retrieves an integer value, accepting the numeric shapes decoders produce.
func (bb *Blackboard) GetInt(key string) (int, bool) {
	value, exists := bb.Get(key)
	if !exists {
		return 0, false
	}
	return toInt(value)
}

// GetFloat retrieves a float64 value.
func (bb *Blackboard) GetFloat(key string) (float64, bool) {
	value, exists := bb.Get(key)
	if !exists {
		return 0, false
	}
	return toFloat(value)
}

// GetBool retrieves a boolean value.
func (bb *Blackboard) GetBool(key string) (bool, bool) {
	value, exists := bb.Get(key)
	if !exists {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// GetVec3 retrieves a position, either stored as Vec3 or decoded as a map
// with x/y/z keys.
func (bb *Blackboard) GetVec3(key string) (Vec3, bool) {
	value, exists := bb.Get(key)
	if !exists {
		return Vec3{}, false
	}
	return toVec3(value)
}

// Has checks if a key exists.
func (bb *Blackboard) Has(key string) bool {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	_, exists := bb.data[key]
	return exists
}

// Delete removes a key.
func (bb *Blackboard) Delete(key string) {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	delete(bb.data, key)
	bb.version++
}

// Keys returns the sorted key set.
func (bb *Blackboard) Keys() []string {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	keys := make([]string, 0, len(bb.data))
	for key := range bb.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Version increments on every write.
func (bb *Blackboard) Version() uint64 {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	return bb.version
}

// Clear removes all data.
func (bb *Blackboard) Clear() {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	bb.data = make(map[string]any)
	bb.version++
}

// Snapshot returns a deep copy of the current values for readers outside the tick.
func (bb *Blackboard) Snapshot() map[string]any {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	out := make(map[string]any, len(bb.data))
	for k, v := range bb.data {
		out[k] = deepCopy(v)
	}
	return out
}

// Clone creates an independent copy sharing no mutable containers.
func (bb *Blackboard) Clone() *Blackboard {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	clone := NewBlackboard()
	for key, value := range bb.data {
		clone.data[key] = deepCopy(value)
	}
	clone.version = bb.version
	return clone
}

// MarshalJSON exports the values.
func (bb *Blackboard) MarshalJSON() ([]byte, error) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	return json.Marshal(bb.data)
}

// UnmarshalJSON replaces the values.
func (bb *Blackboard) UnmarshalJSON(data []byte) error {
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to unmarshal blackboard data: %w", err)
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()

	bb.data = values
	bb.version++
	return nil
}

// Vec3 is a position on the blackboard.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3         { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Add(o Vec3) Vec3         { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Scale(f float64) Vec3    { return Vec3{v.X * f, v.Y * f, v.Z * f} }
func (v Vec3) Length() float64         { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

func toVec3(value any) (Vec3, bool) {
	switch v := value.(type) {
	case Vec3:
		return v, true
	case *Vec3:
		if v == nil {
			return Vec3{}, false
		}
		return *v, true
	case map[string]any:
		var out Vec3
		var ok bool
		if out.X, ok = toFloat(v["x"]); !ok {
			return Vec3{}, false
		}
		if out.Y, ok = toFloat(v["y"]); !ok {
			return Vec3{}, false
		}
		out.Z, _ = toFloat(v["z"])
		return out, true
	default:
		return Vec3{}, false
	}
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// deepCopy duplicates the container shapes that JSON/YAML decoding produces.
// Other values are copied by assignment.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []float64:
		return append([]float64(nil), v...)
	case []int:
		return append([]int(nil), v...)
	case map[string]string:
		return maps.Clone(v)
	case *Vec3:
		if v == nil {
			return v
		}
		c := *v
		return &c
	default:
		return v
	}
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out, _ := deepCopy(params).(map[string]any)
	return out
}
