package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/cpuwatcher/notifier"
	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
)

type Sampler interface {
	Sample() ([]models.ProcessSample, error)
	CommandLine(pid int, fallback string) string
}

type Evaluator interface {
	Evaluate(samples []models.ProcessSample, now time.Time) []models.NotificationEvent
}

type Tracker interface {
	IsEligible(id models.ProcessIdentity, now time.Time) bool
	RecordNotified(id models.ProcessIdentity, now time.Time)
	Lock(id models.ProcessIdentity) *sync.Mutex
	Len() int
}

type Metrics interface {
	NotificationSent()
	NotificationFailed(transient bool)
	CooldownEntries(count int)
	ObserveTick(d time.Duration)
}

// Scheduler drives sample, evaluate and dispatch on a fixed interval. Ticks
// never overlap: a slow tick delays the next one.
type Scheduler struct {
	logger    lager.Logger
	interval  time.Duration
	clock     clock.Clock
	sampler   Sampler
	evaluator Evaluator
	tracker   Tracker
	notifier  notifier.Notifier
	metrics   Metrics

	lastTickMutex sync.RWMutex
	lastTick      time.Time
}

var _ ifrit.Runner = &Scheduler{}

func NewScheduler(logger lager.Logger, interval time.Duration, clock clock.Clock, sampler Sampler, evaluator Evaluator, tracker Tracker, notifier notifier.Notifier, metrics Metrics) *Scheduler {
	return &Scheduler{
		logger:    logger.Session("scheduler"),
		interval:  interval,
		clock:     clock,
		sampler:   sampler,
		evaluator: evaluator,
		tracker:   tracker,
		notifier:  notifier,
		metrics:   metrics,
	}
}

// Run ticks once right away to take the CPU baseline, then on every interval
// until signalled. A signal during a tick cancels its in-flight delivery.
func (s *Scheduler) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	close(ready)
	s.logger.Info("started", lager.Data{"interval": s.interval.String()})

	if s.runTick(ctx, cancel, signals) {
		return nil
	}
	for {
		select {
		case sig := <-signals:
			s.logger.Info("stopped", lager.Data{"signal": sig.String()})
			return nil
		case <-ticker.C():
			if s.runTick(ctx, cancel, signals) {
				return nil
			}
		}
	}
}

// runTick reports whether a signal arrived while the tick was running.
func (s *Scheduler) runTick(ctx context.Context, cancel context.CancelFunc, signals <-chan os.Signal) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Tick(ctx)
	}()

	select {
	case <-done:
		return false
	case sig := <-signals:
		s.logger.Info("stopping-during-tick", lager.Data{"signal": sig.String()})
		cancel()
		<-done
		s.logger.Info("stopped")
		return true
	}
}

func (s *Scheduler) Tick(ctx context.Context) {
	start := s.clock.Now()
	defer func() {
		s.metrics.ObserveTick(s.clock.Since(start))
	}()

	samples, err := s.sampler.Sample()
	if err != nil {
		s.logger.Error("failed-to-sample", err)
		return
	}

	events := s.evaluator.Evaluate(samples, start)
	for i, event := range events {
		if ctx.Err() != nil {
			s.logger.Info("tick-cancelled", lager.Data{"pending-events": len(events) - i})
			return
		}
		s.dispatch(ctx, event)
	}

	s.metrics.CooldownEntries(s.tracker.Len())
	s.setLastTick(s.clock.Now())
}

func (s *Scheduler) dispatch(ctx context.Context, event models.NotificationEvent) {
	logger := s.logger.Session("dispatch", lager.Data{
		"event-id": event.ID,
		"process":  event.Identity.String(),
		"name":     event.Name,
		"cpu":      event.CPUPercent,
	})

	lock := s.tracker.Lock(event.Identity)
	lock.Lock()
	defer lock.Unlock()

	if !s.tracker.IsEligible(event.Identity, event.Timestamp) {
		logger.Debug("no-longer-eligible")
		return
	}

	event.CommandLine = s.sampler.CommandLine(event.Identity.PID, event.Name)

	if err := s.notifier.Notify(ctx, event); err != nil {
		if ctx.Err() != nil {
			logger.Info("notify-aborted", lager.Data{"error": err.Error()})
			return
		}
		transient := notifier.IsTransient(err)
		logger.Error("failed-to-notify", err, lager.Data{"transient": transient})
		s.metrics.NotificationFailed(transient)
		return
	}

	s.tracker.RecordNotified(event.Identity, event.Timestamp)
	s.metrics.NotificationSent()
	logger.Info("notified")
}

func (s *Scheduler) LastTick() time.Time {
	s.lastTickMutex.RLock()
	defer s.lastTickMutex.RUnlock()
	return s.lastTick
}

func (s *Scheduler) setLastTick(t time.Time) {
	s.lastTickMutex.Lock()
	defer s.lastTickMutex.Unlock()
	s.lastTick = t
}
