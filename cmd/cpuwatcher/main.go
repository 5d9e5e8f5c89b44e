package main

import (
	"runtime"

	"code.cloudfoundry.org/cpuwatcher/config"
	"code.cloudfoundry.org/cpuwatcher/cooldown"
	"code.cloudfoundry.org/cpuwatcher/evaluator"
	"code.cloudfoundry.org/cpuwatcher/healthendpoint"
	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/cpuwatcher/notifier"
	"code.cloudfoundry.org/cpuwatcher/sampler"
	"code.cloudfoundry.org/cpuwatcher/scheduler"
	"code.cloudfoundry.org/cpuwatcher/startup"
	"github.com/prometheus/client_golang/prometheus"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
)

// readinessTickFactor is how many check intervals may pass without a
// completed tick before readiness reports the scheduler as down.
const readinessTickFactor = 3

func main() {
	conf, logger := startup.Bootstrap("cpuwatcher", config.LoadConfig)

	clock := clock.NewClock()

	logger.Info("configuration", lager.Data{
		"threshold-percent": conf.Watcher.ThresholdPercent,
		"check-interval":    conf.Watcher.CheckInterval.String(),
		"cooldown":          conf.Watcher.Cooldown.String(),
		"cpu-convention":    conf.Watcher.CPUConvention,
		"proc-mount":        conf.Watcher.ProcMount,
		"num-cpu":           runtime.NumCPU(),
	})

	// Setup components
	watcherCollector := healthendpoint.NewWatcherCollector("cpuwatcher", "watcher")
	promRegistry := prometheus.NewRegistry()
	healthendpoint.RegisterCollectors(promRegistry, []prometheus.Collector{
		watcherCollector,
	}, true, logger.Session("cpuwatcher-prometheus"))

	processTable, err := sampler.NewProcFSTable(logger, conf.Watcher.ProcMount)
	startup.ExitOnError(err, logger, "failed to open process table", lager.Data{"proc-mount": conf.Watcher.ProcMount})

	tracker := cooldown.NewTracker(logger, conf.Watcher.Cooldown)
	cpuSampler := sampler.NewSampler(logger, processTable, clock, conf.Watcher.CPUConvention, runtime.NumCPU(), watcherCollector, tracker.Forget)
	thresholdEvaluator := evaluator.NewEvaluator(logger, conf.Watcher.ThresholdPercent, tracker, watcherCollector)

	clientConfig := helpers.DefaultClientConfig()
	clientConfig.RequestTimeout = conf.Telegram.RequestTimeout
	telegram := notifier.NewTelegramNotifier(logger, conf.Telegram, helpers.CreateHTTPClient(clientConfig), clock)

	cpuScheduler := scheduler.NewScheduler(logger, conf.Watcher.CheckInterval, clock, cpuSampler, thresholdEvaluator, tracker, telegram, watcherCollector)

	checkers := []healthendpoint.Checker{
		healthendpoint.SchedulerChecker("scheduler", cpuScheduler.LastTick, readinessTickFactor*conf.Watcher.CheckInterval, clock.Now),
	}

	// Start services
	startup.StartService(logger,
		startup.Server("scheduler", func() (ifrit.Runner, error) { return cpuScheduler, nil }),
		startup.Server("health_server", func() (ifrit.Runner, error) {
			return healthendpoint.NewServerWithBasicAuth(conf.Health, checkers, logger, promRegistry)
		}),
	)
}
