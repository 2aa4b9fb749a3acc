package patterns

import (
	"context"
	"fmt"

	"github.com/joelkehle/opportunity-radar/internal/model"
)

const (
	velocityStage           = "velocity_spike"
	DefaultSpikeThreshold   = 0.8
	DefaultAnomalyThreshold = 0.9
	minSpikeGroup           = 2
)

// VelocitySpikeDetector is purely numeric and makes no model call.
type VelocitySpikeDetector struct {
	Threshold float64
}

func NewVelocitySpikeDetector(threshold float64) *VelocitySpikeDetector {
	if threshold <= 0 {
		threshold = DefaultSpikeThreshold
	}
	return &VelocitySpikeDetector{Threshold: threshold}
}

func (d *VelocitySpikeDetector) Name() string { return velocityStage }

func (d *VelocitySpikeDetector) Detect(_ context.Context, records []model.ProcessedSignal) ([]model.Pattern, error) {
	groups := map[string][]model.ProcessedSignal{}
	var order []string
	for _, r := range records {
		if r.VelocityScore < d.Threshold {
			continue
		}
		topic := spikeTopic(r)
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], r)
	}

	var out []model.Pattern
	for _, topic := range order {
		group := groups[topic]
		if len(group) < minSpikeGroup {
			continue
		}
		var sum float64
		for _, r := range group {
			sum += r.VelocityScore
		}
		mean := sum / float64(len(group))

		p := newCandidate(model.PatternVelocitySpike, group)
		p.Title = "Velocity Spike: " + topic
		p.Description = fmt.Sprintf("Multiple signals showing rapid acceleration around '%s'", topic)
		p.Hypothesis = fmt.Sprintf("The topic '%s' is experiencing unusual growth. This could indicate emerging demand or interest.", topic)
		p.Confidence = min(1, mean)
		p.OpportunityScore = min(1, mean*(1+float64(len(group))/10))
		p.TimingStage = InferTiming(group)
		out = append(out, p)
	}
	return out, nil
}

func spikeTopic(r model.ProcessedSignal) string {
	if len(r.Keywords) > 0 {
		return r.Keywords[0]
	}
	if r.SignalType != "" {
		return string(r.SignalType)
	}
	return "unknown"
}
