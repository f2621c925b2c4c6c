package models

import (
	"fmt"
	"time"

	"shotlog/pkg/readout"
)

// Shot is one photographed simulator readout and the metrics read from it.
// Every metric is nullable; a nil value means the reading did not produce it.
type Shot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"index;not null" json:"session"`
	Session   *Session  `gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"` // deleting a session deletes its shots
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Image     string    `gorm:"size:512;not null" json:"image"` // media store path, e.g. shots/2024/05/<uuid>.jpg

	// Compact display
	BallSpeed     *float64 `json:"ball_speed"`
	ClubHeadSpeed *float64 `json:"club_head_speed"`
	CarryDistance *float64 `json:"carry_distance"`
	TotalDistance *float64 `json:"total_distance"`

	// Extended display
	SmashFactor   *float64 `json:"smash_factor"`
	LaunchAngle   *float64 `json:"launch_angle"`
	SpinRate      *float64 `json:"spin_rate"`
	SideSpin      *float64 `json:"side_spin"`
	AngleOfAttack *float64 `json:"angle_of_attack"`
	ClubPath      *float64 `json:"club_path"`
	FaceAngle     *float64 `json:"face_angle"`
	DynamicLoft   *float64 `json:"dynamic_loft"`
	ImpactHeight  *float64 `json:"impact_height"`
	ImpactToe     *float64 `json:"impact_toe"`
	BallHeight    *float64 `json:"ball_height"`
	DescentAngle  *float64 `json:"descent_angle"`
	ApexHeight    *float64 `json:"apex_height"`
	HangTime      *float64 `json:"hang_time"`
	Offline       *float64 `json:"offline"`

	Processed        bool     `gorm:"not null;default:false;index" json:"processed"`
	ProcessingErrors string   `gorm:"type:text" json:"processing_errors"`
	ConfidenceScore  *float64 `json:"confidence_score"`
}

func (s Shot) String() string {
	return fmt.Sprintf("Shot %d - %s", s.ID, s.Timestamp.Format("15:04:05"))
}

// ShotPatch is the single update applied to a shot after extraction.
type ShotPatch struct {
	Metrics          readout.Metrics
	Processed        bool
	ProcessingErrors string
	ConfidenceScore  *float64
}

// Apply writes p onto s. Only metrics present in p are written, so fields the
// reading did not produce keep their NULL.
func (s *Shot) Apply(p ShotPatch) {
	s.ApplyMetrics(p.Metrics)
	s.Processed = p.Processed
	s.ProcessingErrors = p.ProcessingErrors
	if p.ConfidenceScore != nil {
		c := *p.ConfidenceScore
		s.ConfidenceScore = &c
	}
}

// ApplyMetrics copies every non-nil metric of m onto s, field by field.
func (s *Shot) ApplyMetrics(m readout.Metrics) {
	set(&s.BallSpeed, m.BallSpeed)
	set(&s.ClubHeadSpeed, m.ClubHeadSpeed)
	set(&s.CarryDistance, m.CarryDistance)
	set(&s.TotalDistance, m.TotalDistance)
	set(&s.SmashFactor, m.SmashFactor)
	set(&s.LaunchAngle, m.LaunchAngle)
	set(&s.SpinRate, m.SpinRate)
	set(&s.SideSpin, m.SideSpin)
	set(&s.AngleOfAttack, m.AngleOfAttack)
	set(&s.ClubPath, m.ClubPath)
	set(&s.FaceAngle, m.FaceAngle)
	set(&s.DynamicLoft, m.DynamicLoft)
	set(&s.ImpactHeight, m.ImpactHeight)
	set(&s.ImpactToe, m.ImpactToe)
	set(&s.BallHeight, m.BallHeight)
	set(&s.DescentAngle, m.DescentAngle)
	set(&s.ApexHeight, m.ApexHeight)
	set(&s.HangTime, m.HangTime)
	set(&s.Offline, m.Offline)
}

func set(dst **float64, v *float64) {
	if v == nil {
		return
	}
	x := *v
	*dst = &x
}
