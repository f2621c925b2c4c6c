// Package readout maps the text read off a simulator screen to shot metrics.
package readout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDisplay is returned by ParseDisplay for unsupported display types.
var ErrUnknownDisplay = errors.New("unknown display type")

// Display identifies which simulator screen a photo was taken of.
type Display string

const (
	// Compact is the on-device OLED readout with four metrics.
	Compact Display = "oled"
	// Extended is the companion iPad app readout with sixteen metrics.
	Extended Display = "ipad"
)

// ParseDisplay maps a request value to a Display. An empty value selects Compact.
func ParseDisplay(s string) (Display, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oled", "compact":
		return Compact, nil
	case "ipad", "extended":
		return Extended, nil
	}
	return "", fmt.Errorf("%w %q (accepted: %s, %s)", ErrUnknownDisplay, s, Compact, Extended)
}

// Field is the name of a single shot metric, as used in API payloads.
type Field string

const (
	BallSpeed     Field = "ball_speed"
	ClubHeadSpeed Field = "club_head_speed"
	CarryDistance Field = "carry_distance"
	TotalDistance Field = "total_distance"
	SmashFactor   Field = "smash_factor"
	LaunchAngle   Field = "launch_angle"
	SpinRate      Field = "spin_rate"
	SideSpin      Field = "side_spin"
	AngleOfAttack Field = "angle_of_attack"
	ClubPath      Field = "club_path"
	FaceAngle     Field = "face_angle"
	DynamicLoft   Field = "dynamic_loft"
	ImpactHeight  Field = "impact_height"
	ImpactToe     Field = "impact_toe"
	BallHeight    Field = "ball_height"
	DescentAngle  Field = "descent_angle"
	ApexHeight    Field = "apex_height"
	HangTime      Field = "hang_time"
	Offline       Field = "offline"
)

// Layouts are positional: the n-th number read from the screen is the n-th field.
// This assumes Tesseract returns lines in the same order they appear on screen.
var (
	compactLayout = []Field{BallSpeed, ClubHeadSpeed, CarryDistance, TotalDistance}

	extendedLayout = []Field{
		BallSpeed, ClubHeadSpeed, SmashFactor, CarryDistance,
		TotalDistance, LaunchAngle, SpinRate, SideSpin,
		AngleOfAttack, ClubPath, FaceAngle, DynamicLoft,
		ImpactHeight, ImpactToe, BallHeight, DescentAngle,
	}
)

// Layout returns the ordered field list read from display d.
func (d Display) Layout() []Field {
	if d == Extended {
		return append([]Field(nil), extendedLayout...)
	}
	return append([]Field(nil), compactLayout...)
}

// Metrics holds every metric a shot can carry. Nil means "not read".
type Metrics struct {
	BallSpeed     *float64
	ClubHeadSpeed *float64
	CarryDistance *float64
	TotalDistance *float64
	SmashFactor   *float64
	LaunchAngle   *float64
	SpinRate      *float64
	SideSpin      *float64
	AngleOfAttack *float64
	ClubPath      *float64
	FaceAngle     *float64
	DynamicLoft   *float64
	ImpactHeight  *float64
	ImpactToe     *float64
	BallHeight    *float64
	DescentAngle  *float64
	ApexHeight    *float64
	HangTime      *float64
	Offline       *float64
}

// slot returns the storage cell for f, or nil for an unknown field.
func (m *Metrics) slot(f Field) **float64 {
	switch f {
	case BallSpeed:
		return &m.BallSpeed
	case ClubHeadSpeed:
		return &m.ClubHeadSpeed
	case CarryDistance:
		return &m.CarryDistance
	case TotalDistance:
		return &m.TotalDistance
	case SmashFactor:
		return &m.SmashFactor
	case LaunchAngle:
		return &m.LaunchAngle
	case SpinRate:
		return &m.SpinRate
	case SideSpin:
		return &m.SideSpin
	case AngleOfAttack:
		return &m.AngleOfAttack
	case ClubPath:
		return &m.ClubPath
	case FaceAngle:
		return &m.FaceAngle
	case DynamicLoft:
		return &m.DynamicLoft
	case ImpactHeight:
		return &m.ImpactHeight
	case ImpactToe:
		return &m.ImpactToe
	case BallHeight:
		return &m.BallHeight
	case DescentAngle:
		return &m.DescentAngle
	case ApexHeight:
		return &m.ApexHeight
	case HangTime:
		return &m.HangTime
	case Offline:
		return &m.Offline
	}
	return nil
}

// Set stores v for field f. Unknown fields are ignored.
func (m *Metrics) Set(f Field, v float64) {
	if p := m.slot(f); p != nil {
		*p = &v
	}
}

// Get returns the value for f, or nil when f was not read.
func (m *Metrics) Get(f Field) *float64 {
	if p := m.slot(f); p != nil {
		return *p
	}
	return nil
}

// Populated counts the non-nil values among fields.
func (m *Metrics) Populated(fields []Field) int {
	n := 0
	for _, f := range fields {
		if m.Get(f) != nil {
			n++
		}
	}
	return n
}

// Values renders fields as a name -> value map; unread fields map to nil (JSON null).
func (m *Metrics) Values(fields []Field) map[string]*float64 {
	out := make(map[string]*float64, len(fields))
	for _, f := range fields {
		out[string(f)] = m.Get(f)
	}
	return out
}

// MapFields assigns numbers to the layout of d by position. Positions past the
// end of numbers stay nil, and numbers past the end of the layout are dropped.
func MapFields(d Display, numbers []float64) Metrics {
	var m Metrics
	for i, f := range d.Layout() {
		if i >= len(numbers) {
			break
		}
		m.Set(f, numbers[i])
	}
	return m
}
