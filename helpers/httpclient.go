package helpers

import (
	"net/http"
	"time"

	"code.cloudfoundry.org/cfhttp/v2"
)

type ClientConfig struct {
	RequestTimeout  time.Duration
	DialTimeout     time.Duration
	IdleConnTimeout time.Duration
	MaxIdleConns    int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout:  10 * time.Second,
		DialTimeout:     5 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxIdleConns:    2,
	}
}

func CreateHTTPClient(conf ClientConfig) *http.Client {
	return cfhttp.NewClient(
		cfhttp.WithRequestTimeout(conf.RequestTimeout),
		cfhttp.WithDialTimeout(conf.DialTimeout),
		cfhttp.WithIdleConnTimeout(conf.IdleConnTimeout),
		cfhttp.WithMaxIdleConnsPerHost(conf.MaxIdleConns),
	)
}
