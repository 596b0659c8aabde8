// Package command implements the Generic Command Manager from spec.md
// §4.3: a per-device filter that remembers the last value issued to each
// actuator feature and collapses a repeated command into no transport
// write at all. It never originates a user-visible error — validating
// subcommand shape against declared capabilities is the Server Event
// Loop's and Client Device Façade's job; this package only filters.
//
// Grounded on original_source's (unretrieved) generic_command_manager.rs
// description in spec.md §4.3, written in the style of
// katagun-webpa-common's registry.go: a small mutex-guarded struct with
// no exported fields and narrow, single-purpose methods.
package command

import (
	"sync"

	"github.com/xmidt-org/idcp/wire"
)

// RotationState is the last-issued value for one rotating feature: a
// rotation needs both magnitude and direction to detect "no change".
type RotationState struct {
	Speed     float64
	Clockwise bool
}

// Manager holds the last-issued actuator state for one device, scoped to
// the three dense-vector command kinds. Feature counts come from the
// device's declared wire.MessageAttributesMap; a zero feature count
// means the device does not support that command kind at all.
type Manager struct {
	mu sync.Mutex

	vibrate []float64
	rotate  []RotationState
	linear  []float64
}

// NewManager builds a Manager sized to attrs, defaulting every feature to
// its neutral rest value (zero speed, zero position, clockwise=false).
func NewManager(attrs wire.MessageAttributesMap) *Manager {
	return &Manager{
		vibrate: make([]float64, featureCount(attrs, wire.VibrateCmd)),
		rotate:  make([]RotationState, featureCount(attrs, wire.RotateCmd)),
		linear:  make([]float64, featureCount(attrs, wire.LinearCmd)),
	}
}

func featureCount(attrs wire.MessageAttributesMap, t wire.DeviceMessageType) uint32 {
	a, ok := attrs[t]
	if !ok || a.FeatureCount == nil {
		return 0
	}
	return *a.FeatureCount
}

// UpdateVibration expands subs into a dense per-feature vector, compares
// against the last-issued values, and returns the sparse set of features
// that changed (or force_send). A nil result means no transport write is
// required. Out-of-range indices are silently dropped: that shape
// validation belongs to the caller, per spec.md §4.3's "it does not
// validate domain invariants".
func (m *Manager) UpdateVibration(subs []wire.VibrateSubcommand, force bool) []*wire.VibrateSubcommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*wire.VibrateSubcommand
	for _, s := range subs {
		if int(s.Index) >= len(m.vibrate) {
			continue
		}
		if !force && m.vibrate[s.Index] == s.Speed {
			continue
		}
		m.vibrate[s.Index] = s.Speed
		s := s
		out = append(out, &s)
	}
	return out
}

// UpdateRotation is UpdateVibration's counterpart for RotateCmd.
func (m *Manager) UpdateRotation(subs []wire.RotationSubcommand, force bool) []*wire.RotationSubcommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*wire.RotationSubcommand
	for _, s := range subs {
		if int(s.Index) >= len(m.rotate) {
			continue
		}
		next := RotationState{Speed: s.Speed, Clockwise: s.Clockwise}
		if !force && m.rotate[s.Index] == next {
			continue
		}
		m.rotate[s.Index] = next
		s := s
		out = append(out, &s)
	}
	return out
}

// UpdateLinear is UpdateVibration's counterpart for LinearCmd. Duration
// is not part of the "last issued" comparison: a linear move is a
// one-shot transit, not a steady-state output, so only Position carries
// forward as the feature's resting value.
func (m *Manager) UpdateLinear(subs []wire.VectorSubcommand, force bool) []*wire.VectorSubcommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*wire.VectorSubcommand
	for _, s := range subs {
		if int(s.Index) >= len(m.linear) {
			continue
		}
		if !force && m.linear[s.Index] == s.Position {
			continue
		}
		m.linear[s.Index] = s.Position
		s := s
		out = append(out, &s)
	}
	return out
}

// StopCommands is the canonical all-rest command set for one device,
// returned by GetStopCommands.
type StopCommands struct {
	Vibrate []wire.VibrateSubcommand
	Rotate  []wire.RotationSubcommand
	Linear  []wire.VectorSubcommand
}

// GetStopCommands returns the dense, all-zero subcommand set for every
// feature this device declares, used at disconnect (or StopAllDevices)
// to guarantee the device returns to rest regardless of its current
// last-issued state.
func (m *Manager) GetStopCommands() StopCommands {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := StopCommands{
		Vibrate: make([]wire.VibrateSubcommand, len(m.vibrate)),
		Rotate:  make([]wire.RotationSubcommand, len(m.rotate)),
		Linear:  make([]wire.VectorSubcommand, len(m.linear)),
	}
	for i := range stop.Vibrate {
		stop.Vibrate[i] = wire.VibrateSubcommand{Index: uint32(i), Speed: 0}
	}
	for i := range stop.Rotate {
		stop.Rotate[i] = wire.RotationSubcommand{Index: uint32(i), Speed: 0, Clockwise: false}
	}
	for i := range stop.Linear {
		stop.Linear[i] = wire.VectorSubcommand{Index: uint32(i), Duration: 0, Position: 0}
	}
	return stop
}
