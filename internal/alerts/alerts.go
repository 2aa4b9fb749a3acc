// Package alerts raises notifications for anomalies worth a human look:
// fast-moving signals, confident new patterns and favourable market shifts.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/opportunity-radar/internal/logging"
	"github.com/joelkehle/opportunity-radar/internal/model"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

const (
	TypeVelocitySpike = "velocity_spike"
	TypeNewPattern    = "new_pattern"
	TypeMarketShift   = "market_shift"
)

const (
	windowDays          = 7
	velocityThreshold   = 0.9
	velocityHigh        = 0.95
	patternConfidence   = 0.8
	patternHighScore    = 0.8
	marketShiftMinScore = 8
	titleLen            = 50
)

type Alert struct {
	ID          string         `json:"id"`
	Type        string         `json:"alert_type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Urgency     Urgency        `json:"urgency"`
	Thesis      model.Factor   `json:"thesis_alignment,omitempty"`
	DetectedAt  time.Time      `json:"detected_at"`
	Data        map[string]any `json:"data"`
}

type Store interface {
	FetchProcessedSignals(ctx context.Context, f model.SignalFilter) ([]model.ProcessedSignal, error)
	FetchPatterns(ctx context.Context, f model.PatternFilter) ([]model.Pattern, error)
}

// System keeps the pending alert list in memory. An alert ID is raised at
// most once per System, even after it has been dismissed.
type System struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time

	mu      sync.Mutex
	pending []Alert
	seen    map[string]bool
}

func New(store Store, log logrus.FieldLogger) *System {
	return &System{store: store, log: logging.OrDiscard(log), now: time.Now, seen: map[string]bool{}}
}

// Check scans the store and returns the alerts not raised before.
func (s *System) Check(ctx context.Context) ([]Alert, error) {
	now := s.now().UTC()
	signals, err := s.store.FetchProcessedSignals(ctx, model.SignalFilter{
		Since:               now.Add(-windowDays * 24 * time.Hour),
		ExcludeDisqualified: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	patterns, err := s.store.FetchPatterns(ctx, model.PatternFilter{Status: model.PatternNew, MinScore: 0})
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}

	var found []Alert
	found = append(found, velocityAlerts(signals, now)...)
	found = append(found, patternAlerts(patterns, now)...)
	found = append(found, marketShiftAlerts(signals, now)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := found[:0]
	for _, a := range found {
		if s.seen[a.ID] {
			continue
		}
		s.seen[a.ID] = true
		fresh = append(fresh, a)
	}
	s.pending = append(s.pending, fresh...)
	if len(fresh) > 0 {
		s.log.WithField("alerts", len(fresh)).Info("new alerts raised")
	}
	return append([]Alert(nil), fresh...), nil
}

func (s *System) Pending() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.pending...)
}

// Dismiss removes the alert and reports whether it was pending.
func (s *System) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.pending {
		if a.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

func velocityAlerts(signals []model.ProcessedSignal, now time.Time) []Alert {
	var out []Alert
	for _, sig := range signals {
		if sig.VelocityScore < velocityThreshold {
			continue
		}
		urgency := UrgencyMedium
		if sig.VelocityScore > velocityHigh {
			urgency = UrgencyHigh
		}
		out = append(out, Alert{
			ID:          "velocity_" + sig.ID,
			Type:        TypeVelocitySpike,
			Title:       "Velocity Spike: " + model.Truncate(sig.Title, titleLen),
			Description: fmt.Sprintf("Signal showing unusual acceleration (velocity: %.2f)", sig.VelocityScore),
			Urgency:     urgency,
			Thesis:      primary(sig.Scores),
			DetectedAt:  now,
			Data: map[string]any{
				"signal_id":      sig.ID,
				"velocity_score": sig.VelocityScore,
				"keywords":       sig.Keywords,
				"signal_type":    sig.SignalType,
			},
		})
	}
	return out
}

func patternAlerts(patterns []model.Pattern, now time.Time) []Alert {
	var out []Alert
	for _, p := range patterns {
		if p.Status != model.PatternNew || p.Confidence < patternConfidence {
			continue
		}
		urgency := UrgencyMedium
		if p.OpportunityScore > patternHighScore {
			urgency = UrgencyHigh
		}
		desc := p.Hypothesis
		if desc == "" {
			desc = p.Description
		}
		if desc == "" {
			desc = "High-confidence pattern detected"
		}
		out = append(out, Alert{
			ID:          "pattern_" + p.ID,
			Type:        TypeNewPattern,
			Title:       "New Pattern: " + model.Truncate(p.Title, titleLen),
			Description: desc,
			Urgency:     urgency,
			Thesis:      p.PrimaryThesis,
			DetectedAt:  now,
			Data: map[string]any{
				"pattern_id":        p.ID,
				"pattern_type":      p.PatternType,
				"confidence":        p.Confidence,
				"opportunity_score": p.OpportunityScore,
			},
		})
	}
	return out
}

func marketShiftAlerts(signals []model.ProcessedSignal, now time.Time) []Alert {
	var out []Alert
	for _, sig := range signals {
		if sig.SignalType != model.SignalMarketShift || !shiftWorthAlerting(sig.Scores) {
			continue
		}
		desc := sig.Summary
		if desc == "" {
			desc = "New market shift signal detected"
		}
		out = append(out, Alert{
			ID:          "market_shift_" + sig.ID,
			Type:        TypeMarketShift,
			Title:       "Market Shift: " + model.Truncate(sig.Title, titleLen),
			Description: desc,
			Urgency:     UrgencyMedium,
			Thesis:      primary(sig.Scores),
			DetectedAt:  now,
			Data: map[string]any{
				"signal_id": sig.ID,
				"locations": sig.Entities.Locations,
				"keywords":  sig.Keywords,
			},
		})
	}
	return out
}

func shiftWorthAlerting(s model.ThesisScores) bool {
	for _, f := range []model.Factor{model.FactorRegulatorySimplicity, model.FactorTrendTiming} {
		if v, ok := s.Get(f); ok && v >= marketShiftMinScore {
			return true
		}
	}
	return false
}

func primary(s model.ThesisScores) model.Factor {
	if s.Present() == 0 {
		return ""
	}
	return s.Primary()
}

// Notification is an alert flattened for delivery.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Urgency   string `json:"urgency"`
	Thesis    string `json:"thesis"`
	Timestamp string `json:"timestamp"`
}

var urgencyMarker = map[Urgency]string{
	UrgencyHigh:   "[!!!]",
	UrgencyMedium: "[!!]",
	UrgencyLow:    "[!]",
}

func Format(a Alert) Notification {
	thesis := string(a.Thesis)
	if thesis == "" {
		thesis = "N/A"
	}
	marker, ok := urgencyMarker[a.Urgency]
	if !ok {
		marker = urgencyMarker[UrgencyLow]
	}
	return Notification{
		Title:     marker + " " + a.Title,
		Body:      a.Description,
		Urgency:   string(a.Urgency),
		Thesis:    thesis,
		Timestamp: a.DetectedAt.Format(time.RFC3339),
	}
}
