package evaluator

import (
	"sort"
	"time"

	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
	"github.com/google/uuid"
)

type EligibilityChecker interface {
	IsEligible(id models.ProcessIdentity, now time.Time) bool
}

type Metrics interface {
	Breached()
	Suppressed()
}

type Evaluator struct {
	logger    lager.Logger
	threshold float64
	tracker   EligibilityChecker
	metrics   Metrics
}

func NewEvaluator(logger lager.Logger, threshold float64, tracker EligibilityChecker, metrics Metrics) *Evaluator {
	return &Evaluator{
		logger:    logger.Session("evaluator"),
		threshold: threshold,
		tracker:   tracker,
		metrics:   metrics,
	}
}

// Evaluate returns one event per sample strictly above the threshold whose
// identity is outside its cooldown at now. Events are ordered by PID and then
// start time. The tracker is only read.
func (e *Evaluator) Evaluate(samples []models.ProcessSample, now time.Time) []models.NotificationEvent {
	events := []models.NotificationEvent{}
	for _, sample := range samples {
		if !(sample.CPUPercent > e.threshold) {
			continue
		}
		if e.metrics != nil {
			e.metrics.Breached()
		}

		if !e.tracker.IsEligible(sample.Identity, now) {
			e.logger.Debug("suppressed-by-cooldown", lager.Data{"process": sample.Identity.String(), "name": sample.Name, "cpu": sample.CPUPercent})
			if e.metrics != nil {
				e.metrics.Suppressed()
			}
			continue
		}

		events = append(events, models.NewNotificationEvent(uuid.NewString(), sample, e.threshold, now))
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Identity.Less(events[j].Identity)
	})

	if len(events) > 0 {
		e.logger.Info("threshold-breached", lager.Data{"count": len(events), "threshold": e.threshold})
	}
	return events
}
