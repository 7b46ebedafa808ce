package app

import (
	"math"
	"time"

	"golekquiz-service/internal/domain"
)

// ScoringPolicy decides how many points a correct answer earns.
type ScoringPolicy interface {
	Points(question domain.Question, responseTime time.Duration) int
}

// FullPoints always awards the question's full points.
type FullPoints struct{}

func (FullPoints) Points(question domain.Question, _ time.Duration) int {
	return question.EffectivePoints()
}

// SpeedScaled scales points by the fraction of the time limit left when the
// answer arrived, never below Floor. Questions without a limit get full points.
type SpeedScaled struct {
	Floor float64
}

func (p SpeedScaled) Points(question domain.Question, responseTime time.Duration) int {
	points := question.EffectivePoints()
	if question.TimeLimit <= 0 {
		return points
	}
	limit := time.Duration(question.TimeLimit) * time.Second
	fraction := float64(limit-responseTime) / float64(limit)
	floor := math.Min(math.Max(p.Floor, 0), 1)
	if fraction < floor {
		fraction = floor
	}
	if fraction > 1 {
		fraction = 1
	}
	earned := int(math.Round(float64(points) * fraction))
	if earned < 1 {
		earned = 1
	}
	return earned
}
