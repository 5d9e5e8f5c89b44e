package healthendpoint

import (
	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/lager/v3"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tedsuo/ifrit"
)

// NewServerWithBasicAuth serves readiness and metrics on the health port.
// Metrics require basic auth when credentials are configured.
func NewServerWithBasicAuth(conf helpers.HealthConfig, healthCheckers []Checker, logger lager.Logger, gatherer prometheus.Gatherer) (ifrit.Runner, error) {
	healthRouter, err := NewHealthRouter(conf, healthCheckers, logger, gatherer)
	if err != nil {
		return nil, err
	}
	return helpers.NewHTTPServer(logger.Session("health-server"), conf.ServerConfig, healthRouter), nil
}

func NewHealthRouter(conf helpers.HealthConfig, healthCheckers []Checker, logger lager.Logger, gatherer prometheus.Gatherer) (*mux.Router, error) {
	promHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	router := mux.NewRouter()
	// unauthenticated
	if conf.ReadinessCheckEnabled {
		router.Handle("/health/readiness", readiness(healthCheckers))
	}

	if !conf.BasicAuthEnabled() {
		router.PathPrefix("").Handler(promHandler)
		return router, nil
	}

	basicAuthentication, err := helpers.CreateBasicAuthMiddleware(logger, conf.BasicAuth)
	if err != nil {
		return nil, err
	}
	everything := router.PathPrefix("").Subrouter()
	everything.Use(basicAuthentication.BasicAuthenticationMiddleware)
	everything.PathPrefix("").Handler(promHandler)

	return router, nil
}
