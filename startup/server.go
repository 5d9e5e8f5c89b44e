package startup

import (
	"fmt"

	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
)

type ServerBuilder struct {
	Name       string
	CreateFunc func() (ifrit.Runner, error)
}

// CreateServers builds every member in order; a builder error is fatal.
func CreateServers(builders []ServerBuilder, logger lager.Logger) grouper.Members {
	var members grouper.Members
	for _, builder := range builders {
		server, err := builder.CreateFunc()
		ExitOnError(err, logger, fmt.Sprintf("failed to create %s", builder.Name))
		members = append(members, grouper.Member{Name: builder.Name, Runner: server})
	}
	return members
}

func Server(name string, createFunc func() (ifrit.Runner, error)) ServerBuilder {
	return ServerBuilder{
		Name:       name,
		CreateFunc: createFunc,
	}
}

// StartService runs the members as an ordered group until SIGINT/SIGTERM.
func StartService(logger lager.Logger, servers ...ServerBuilder) {
	members := CreateServers(servers, logger)
	err := StartServices(logger, members)
	if err != nil {
		ExitOnError(err, logger, "service startup failed")
	}
}
