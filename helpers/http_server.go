package helpers

import (
	"fmt"
	"net/http"
	"os"

	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/http_server"
)

type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

func (c ServerConfig) Address() string {
	if os.Getenv("CPUWATCHER_TEST_RUN") == "true" {
		return fmt.Sprintf("localhost:%d", c.Port)
	}
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

func NewHTTPServer(logger lager.Logger, conf ServerConfig, handler http.Handler) ifrit.Runner {
	addr := conf.Address()
	logger.Info("new-http-server", lager.Data{"addr": addr})
	return http_server.New(addr, handler)
}
