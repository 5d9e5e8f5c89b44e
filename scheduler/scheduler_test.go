package scheduler_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/cpuwatcher/cooldown"
	"code.cloudfoundry.org/cpuwatcher/evaluator"
	"code.cloudfoundry.org/cpuwatcher/fakes"
	"code.cloudfoundry.org/cpuwatcher/healthendpoint"
	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/cpuwatcher/notifier"
	"code.cloudfoundry.org/cpuwatcher/sampler"
	. "code.cloudfoundry.org/cpuwatcher/scheduler"
	"code.cloudfoundry.org/lager/v3"
	"code.cloudfoundry.org/lager/v3/lagertest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tedsuo/ifrit"
)

const interval = time.Second

// busyProcess burns a fixed share of one core since t0.
type busyProcess struct {
	identity models.ProcessIdentity
	share    float64
	t0       time.Time
}

var _ = Describe("Scheduler", func() {
	var (
		fclock    *fakeclock.FakeClock
		t0        time.Time
		logger    *lagertest.TestLogger
		table     *fakes.FakeProcessTable
		fnotifier *fakes.FakeNotifier
		tracker   *cooldown.Tracker
		metrics   *healthendpoint.WatcherCollector
		scheduler *Scheduler
		process   ifrit.Process

		procsMutex sync.Mutex
		procs      []busyProcess
		unreadable map[int]bool
	)

	setProcesses := func(p ...busyProcess) {
		procsMutex.Lock()
		defer procsMutex.Unlock()
		procs = p
	}

	setUnreadable := func(pids ...int) {
		procsMutex.Lock()
		defer procsMutex.Unlock()
		unreadable = map[int]bool{}
		for _, pid := range pids {
			unreadable[pid] = true
		}
	}

	tick := func(d time.Duration) {
		Eventually(fclock.WatcherCount).Should(Equal(1))
		fclock.Increment(d)
		Eventually(scheduler.LastTick).Should(Equal(fclock.Now()))
	}

	notified := func() []models.NotificationEvent {
		events := []models.NotificationEvent{}
		for i := 0; i < fnotifier.NotifyCallCount(); i++ {
			_, event := fnotifier.NotifyArgsForCall(i)
			events = append(events, event)
		}
		return events
	}

	BeforeEach(func() {
		t0 = time.Unix(1700000000, 0)
		fclock = fakeclock.NewFakeClock(t0)
		logger = lagertest.NewTestLogger("scheduler")
		table = &fakes.FakeProcessTable{}
		fnotifier = &fakes.FakeNotifier{}
		metrics = healthendpoint.NewWatcherCollector("cpuwatcher", "watcher")

		p100 := busyProcess{identity: models.ProcessIdentity{PID: 100, StartTime: 5000}, share: 0.75, t0: t0}
		setProcesses(p100)
		setUnreadable()

		table.ProcessesStub = func() ([]models.ProcessStat, []int, error) {
			procsMutex.Lock()
			defer procsMutex.Unlock()
			stats := []models.ProcessStat{}
			var skipped []int
			for _, p := range procs {
				if unreadable[p.identity.PID] {
					skipped = append(skipped, p.identity.PID)
					continue
				}
				elapsed := fclock.Now().Sub(p.t0)
				stats = append(stats, models.ProcessStat{
					Identity: p.identity,
					Name:     "busy",
					CPUTime:  time.Duration(float64(elapsed) * p.share),
				})
			}
			return stats, skipped, nil
		}
		table.CommandLineReturns("busy --forever", nil)
	})

	JustBeforeEach(func() {
		tracker = cooldown.NewTracker(logger, 600*time.Second)
		s := sampler.NewSampler(logger, table, fclock, models.CPUConventionPerCore, 4, metrics, tracker.Forget)
		e := evaluator.NewEvaluator(logger, 50.0, tracker, metrics)
		scheduler = NewScheduler(logger, interval, fclock, s, e, tracker, fnotifier, metrics)
		process = ifrit.Background(scheduler)
		Eventually(process.Ready()).Should(BeClosed())
		Eventually(scheduler.LastTick).Should(Equal(t0))
	})

	AfterEach(func() {
		process.Signal(os.Interrupt)
		Eventually(process.Wait()).Should(Receive())
	})

	It("only takes a baseline on the first tick", func() {
		Expect(fnotifier.NotifyCallCount()).To(BeZero())
	})

	It("notifies once per cooldown window", func() {
		By("breaching at t=1")
		tick(interval)
		Expect(fnotifier.NotifyCallCount()).To(Equal(1))
		event := notified()[0]
		Expect(event.Identity).To(Equal(models.ProcessIdentity{PID: 100, StartTime: 5000}))
		Expect(event.CPUPercent).To(BeNumerically("~", 75.0, 1e-6))
		Expect(event.Threshold).To(Equal(50.0))
		Expect(event.CommandLine).To(Equal("busy --forever"))
		Expect(event.Timestamp).To(Equal(t0.Add(time.Second)))

		By("suppressing at t=2")
		tick(interval)
		Expect(fnotifier.NotifyCallCount()).To(Equal(1))

		By("notifying again at t=601")
		tick(599 * time.Second)
		Expect(fnotifier.NotifyCallCount()).To(Equal(2))
		Expect(notified()[1].Timestamp).To(Equal(t0.Add(601 * time.Second)))

		registry := prometheus.NewRegistry()
		Expect(registry.Register(metrics)).To(Succeed())
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP cpuwatcher_watcher_notifications_sent_total Number of notifications accepted by the endpoint
# TYPE cpuwatcher_watcher_notifications_sent_total counter
cpuwatcher_watcher_notifications_sent_total 2
# HELP cpuwatcher_watcher_notifications_suppressed_total Number of breaches not notified because the process is in cooldown
# TYPE cpuwatcher_watcher_notifications_suppressed_total counter
cpuwatcher_watcher_notifications_suppressed_total 1
`), "cpuwatcher_watcher_notifications_sent_total", "cpuwatcher_watcher_notifications_suppressed_total")).To(Succeed())
	})

	Context("when delivery fails", func() {
		BeforeEach(func() {
			fnotifier.NotifyReturns(&notifier.DeliveryError{Transient: true, StatusCode: 502})
		})

		It("keeps the process eligible", func() {
			tick(interval)
			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(2))
			Expect(tracker.Len()).To(BeZero())
			Expect(logger.LogMessages()).To(ContainElement("scheduler.scheduler.dispatch.failed-to-notify"))
		})
	})

	Context("with two breaching processes", func() {
		BeforeEach(func() {
			setProcesses(
				busyProcess{identity: models.ProcessIdentity{PID: 300, StartTime: 1}, share: 0.9, t0: t0},
				busyProcess{identity: models.ProcessIdentity{PID: 100, StartTime: 5000}, share: 0.75, t0: t0},
			)
		})

		It("delivers in ascending pid order", func() {
			tick(interval)
			events := notified()
			Expect(events).To(HaveLen(2))
			Expect(events[0].Identity.PID).To(Equal(100))
			Expect(events[1].Identity.PID).To(Equal(300))
		})
	})

	Context("when the pid is reused", func() {
		It("notifies about the new process within the cooldown", func() {
			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(1))

			setProcesses(busyProcess{identity: models.ProcessIdentity{PID: 100, StartTime: 9000}, share: 0.8, t0: fclock.Now()})
			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(1))

			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(2))
			Expect(notified()[1].Identity).To(Equal(models.ProcessIdentity{PID: 100, StartTime: 9000}))
		})
	})

	Context("when a process cannot be read for one tick", func() {
		It("keeps its cooldown", func() {
			id := models.ProcessIdentity{PID: 100, StartTime: 5000}
			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(1))

			setUnreadable(100)
			tick(interval)
			_, recorded := tracker.Entry(id)
			Expect(recorded).To(BeTrue())

			setUnreadable()
			tick(interval)
			tick(interval)
			Expect(fnotifier.NotifyCallCount()).To(Equal(1))

			registry := prometheus.NewRegistry()
			Expect(registry.Register(metrics)).To(Succeed())
			Expect(testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP cpuwatcher_watcher_notifications_suppressed_total Number of breaches not notified because the process is in cooldown
# TYPE cpuwatcher_watcher_notifications_suppressed_total counter
cpuwatcher_watcher_notifications_suppressed_total 2
`), "cpuwatcher_watcher_notifications_suppressed_total")).To(Succeed())
		})
	})

	Context("when the process table cannot be read", func() {
		It("skips the tick without notifying", func() {
			table.ProcessesReturnsOnCall(1, nil, nil, errors.New("permission denied"))
			Eventually(fclock.WatcherCount).Should(Equal(1))
			fclock.Increment(interval)
			Eventually(logger.LogMessages).Should(ContainElement("scheduler.scheduler.failed-to-sample"))
			Expect(scheduler.LastTick()).To(Equal(t0))
			Expect(fnotifier.NotifyCallCount()).To(BeZero())
		})
	})
})

var _ = Describe("Scheduler shutdown", func() {
	It("cancels an in-flight delivery and does not record it", func() {
		t0 := time.Unix(1700000000, 0)
		fclock := fakeclock.NewFakeClock(t0)
		logger := lagertest.NewTestLogger("scheduler")
		tracker := cooldown.NewTracker(logger, 600*time.Second)
		metrics := healthendpoint.NewWatcherCollector("cpuwatcher", "watcher")

		table := &fakes.FakeProcessTable{}
		calls := 0
		table.ProcessesStub = func() ([]models.ProcessStat, []int, error) {
			calls++
			return []models.ProcessStat{{
				Identity: models.ProcessIdentity{PID: 100, StartTime: 5000},
				Name:     "busy",
				CPUTime:  time.Duration(calls) * time.Second,
			}}, nil, nil
		}

		inFlight := make(chan struct{})
		fnotifier := &fakes.FakeNotifier{}
		fnotifier.NotifyStub = func(ctx context.Context, _ models.NotificationEvent) error {
			close(inFlight)
			<-ctx.Done()
			return ctx.Err()
		}

		s := sampler.NewSampler(logger, table, fclock, models.CPUConventionPerCore, 1, metrics, tracker.Forget)
		e := evaluator.NewEvaluator(logger, 50.0, tracker, metrics)
		scheduler := NewScheduler(logger, interval, fclock, s, e, tracker, fnotifier, metrics)
		process := ifrit.Background(scheduler)
		Eventually(process.Ready()).Should(BeClosed())

		Eventually(fclock.WatcherCount).Should(Equal(1))
		fclock.Increment(interval)
		Eventually(inFlight).Should(BeClosed())

		process.Signal(os.Interrupt)
		Eventually(process.Wait()).Should(Receive(BeNil()))
		Expect(tracker.Len()).To(BeZero())
		Expect(logger.LogMessages()).To(ContainElement("scheduler.scheduler.stopping-during-tick"))
		Expect(logger.LogMessages()).To(ContainElement("scheduler.scheduler.dispatch.notify-aborted"))
		Expect(testutil.CollectAndCount(metrics, "cpuwatcher_watcher_notifications_failed_total")).To(BeZero())
	})
})

var _ = Describe("Scheduler.Tick", func() {
	It("reports how many events were left undelivered when cancelled", func() {
		t0 := time.Unix(1700000000, 0)
		fclock := fakeclock.NewFakeClock(t0)
		logger := lagertest.NewTestLogger("scheduler")
		tracker := cooldown.NewTracker(logger, 600*time.Second)
		metrics := healthendpoint.NewWatcherCollector("cpuwatcher", "watcher")

		table := &fakes.FakeProcessTable{}
		table.ProcessesStub = func() ([]models.ProcessStat, []int, error) {
			elapsed := fclock.Now().Sub(t0)
			return []models.ProcessStat{
				{Identity: models.ProcessIdentity{PID: 100, StartTime: 5000}, Name: "busy", CPUTime: elapsed},
				{Identity: models.ProcessIdentity{PID: 200, StartTime: 6000}, Name: "busy", CPUTime: elapsed},
			}, nil, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fnotifier := &fakes.FakeNotifier{}
		fnotifier.NotifyStub = func(context.Context, models.NotificationEvent) error {
			cancel()
			return nil
		}

		s := sampler.NewSampler(logger, table, fclock, models.CPUConventionPerCore, 1, metrics, tracker.Forget)
		e := evaluator.NewEvaluator(logger, 50.0, tracker, metrics)
		scheduler := NewScheduler(logger, interval, fclock, s, e, tracker, fnotifier, metrics)

		scheduler.Tick(ctx)
		fclock.Increment(interval)
		scheduler.Tick(ctx)

		Expect(fnotifier.NotifyCallCount()).To(Equal(1))
		Expect(tracker.Len()).To(Equal(1))

		var cancelled []lager.LogFormat
		for _, log := range logger.Logs() {
			if log.Message == "scheduler.scheduler.tick-cancelled" {
				cancelled = append(cancelled, log)
			}
		}
		Expect(cancelled).To(HaveLen(1))
		Expect(cancelled[0].Data).To(HaveKeyWithValue("pending-events", BeNumerically("==", 1)))
	})
})
