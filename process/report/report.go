// Package report summarizes the shots of a session.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"shotlog/models"
	"shotlog/pkg/readout"
	"shotlog/pkg/store"
)

// Stat aggregates one metric over the shots that have it.
type Stat struct {
	Field readout.Field
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

type SessionReport struct {
	Session   models.Session
	Shots     int
	Processed int
	Failed    int
	// MeanConfidence covers processed shots only.
	MeanConfidence float64
	Stats          []Stat
	Rows           []models.Shot
}

// allFields lists every metric a shot can carry, compact layout first.
var allFields = []readout.Field{
	readout.BallSpeed, readout.ClubHeadSpeed, readout.CarryDistance, readout.TotalDistance,
	readout.SmashFactor, readout.LaunchAngle, readout.SpinRate, readout.SideSpin,
	readout.AngleOfAttack, readout.ClubPath, readout.FaceAngle, readout.DynamicLoft,
	readout.ImpactHeight, readout.ImpactToe, readout.BallHeight, readout.DescentAngle,
	readout.ApexHeight, readout.HangTime, readout.Offline,
}

// Build loads the session and summarizes its shots. Metrics no shot has are omitted.
func Build(ctx context.Context, repo store.Repository, sessionID uint) (*SessionReport, error) {
	session, err := repo.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	shots, err := repo.ListShots(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rep := &SessionReport{Session: *session, Shots: len(shots), Rows: shots}

	var confSum float64
	var confN int
	for _, s := range shots {
		if s.Processed {
			rep.Processed++
		} else if s.ProcessingErrors != "" {
			rep.Failed++
		}
		if s.ConfidenceScore != nil {
			confSum += *s.ConfidenceScore
			confN++
		}
	}
	if confN > 0 {
		rep.MeanConfidence = confSum / float64(confN)
	}

	for _, f := range allFields {
		st := Stat{Field: f}
		var sum float64
		for i := range shots {
			v := metric(&shots[i], f)
			if v == nil {
				continue
			}
			if st.Count == 0 || *v < st.Min {
				st.Min = *v
			}
			if st.Count == 0 || *v > st.Max {
				st.Max = *v
			}
			sum += *v
			st.Count++
		}
		if st.Count == 0 {
			continue
		}
		st.Mean = sum / float64(st.Count)
		rep.Stats = append(rep.Stats, st)
	}
	return rep, nil
}

func metric(s *models.Shot, f readout.Field) *float64 {
	switch f {
	case readout.BallSpeed:
		return s.BallSpeed
	case readout.ClubHeadSpeed:
		return s.ClubHeadSpeed
	case readout.CarryDistance:
		return s.CarryDistance
	case readout.TotalDistance:
		return s.TotalDistance
	case readout.SmashFactor:
		return s.SmashFactor
	case readout.LaunchAngle:
		return s.LaunchAngle
	case readout.SpinRate:
		return s.SpinRate
	case readout.SideSpin:
		return s.SideSpin
	case readout.AngleOfAttack:
		return s.AngleOfAttack
	case readout.ClubPath:
		return s.ClubPath
	case readout.FaceAngle:
		return s.FaceAngle
	case readout.DynamicLoft:
		return s.DynamicLoft
	case readout.ImpactHeight:
		return s.ImpactHeight
	case readout.ImpactToe:
		return s.ImpactToe
	case readout.BallHeight:
		return s.BallHeight
	case readout.DescentAngle:
		return s.DescentAngle
	case readout.ApexHeight:
		return s.ApexHeight
	case readout.HangTime:
		return s.HangTime
	case readout.Offline:
		return s.Offline
	}
	return nil
}

// Write prints rep as plain text. With list set every shot is printed as a
// pipe separated row.
func Write(w io.Writer, rep *SessionReport, list bool) error {
	if _, err := fmt.Fprintf(w, "Report for session %d %q (created %s):\n",
		rep.Session.ID, rep.Session.Name, rep.Session.CreatedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	fmt.Fprintf(w, "  shots=%d processed=%d failed=%d mean_confidence=%.2f\n",
		rep.Shots, rep.Processed, rep.Failed, rep.MeanConfidence)
	for _, st := range rep.Stats {
		fmt.Fprintf(w, "  %-16s n=%-4d min=%-8.2f max=%-8.2f mean=%.2f\n", st.Field, st.Count, st.Min, st.Max, st.Mean)
	}
	if list {
		for _, s := range rep.Rows {
			fmt.Fprintf(w, "%d|%s|%t|%s|%s\n", s.ID, s.Timestamp.Format(time.RFC3339), s.Processed, fmtPtr(s.BallSpeed), s.Image)
		}
	}
	return nil
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
