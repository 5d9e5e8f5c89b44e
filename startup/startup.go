package startup

import (
	"flag"
	"fmt"
	"os"

	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"
)

type ConfigValidator interface {
	Validate() error
}

type ConfigWithLogging interface {
	ConfigValidator
	GetLogging() *helpers.LoggingConfig
}

type ConfigLoader[T ConfigWithLogging] func(path string, envFile string) (T, error)

type Flags struct {
	ConfigPath string
	EnvFile    string
}

func ParseFlags() Flags {
	var flags Flags
	flag.StringVar(&flags.ConfigPath, "c", "", "config file")
	flag.StringVar(&flags.EnvFile, "e", "", "optional .env file with environment overrides")
	flag.Parse()
	return flags
}

func LoadAndValidateConfig[T ConfigWithLogging](flags Flags, loader ConfigLoader[T]) (T, error) {
	var zero T
	conf, err := loader(flags.ConfigPath, flags.EnvFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "failed to read config file '%s' : %s\n", flags.ConfigPath, err.Error())
		return zero, err
	}

	err = conf.Validate()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "failed to validate configuration : %s\n", err.Error())
		return zero, err
	}

	return conf, nil
}

func InitLogger(loggingConfig *helpers.LoggingConfig, serviceName string) lager.Logger {
	return helpers.InitLoggerFromConfig(loggingConfig, serviceName)
}

func StartServices(logger lager.Logger, members grouper.Members) error {
	monitor := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members)))
	logger.Info("started")
	err := <-monitor.Wait()
	if err != nil {
		logger.Error("exited-with-failure", err)
		return err
	}
	logger.Info("exited")
	return nil
}

func ExitOnError(err error, logger lager.Logger, message string, data ...lager.Data) {
	if err != nil {
		if len(data) > 0 {
			logger.Error(message, err, data[0])
		} else {
			logger.Error(message, err)
		}
		os.Exit(1)
	}
}

// Bootstrap parses flags, loads and validates the configuration and builds
// the root logger. Any failure exits the process with status 1.
func Bootstrap[T ConfigWithLogging](serviceName string, configLoader ConfigLoader[T]) (T, lager.Logger) {
	flags := ParseFlags()

	conf, err := LoadAndValidateConfig(flags, configLoader)
	if err != nil {
		os.Exit(1)
	}

	logger := InitLogger(conf.GetLogging(), serviceName)

	return conf, logger
}
