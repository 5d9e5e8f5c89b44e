package notifier_test

import (
	"context"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/cpuwatcher/config"
	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/cpuwatcher/models"
	. "code.cloudfoundry.org/cpuwatcher/notifier"
	"code.cloudfoundry.org/lager/v3/lagertest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

const sendPath = "/bot123:abc/sendMessage"

var _ = Describe("TelegramNotifier", func() {
	var (
		server   *ghttp.Server
		conf     config.TelegramConfig
		nclock   clock.Clock
		logger   *lagertest.TestLogger
		notifier *TelegramNotifier
		event    models.NotificationEvent
		ctx      context.Context
		cancel   context.CancelFunc
	)

	okResponse := ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{"ok": true})

	BeforeEach(func() {
		server = ghttp.NewServer()
		conf = config.TelegramConfig{
			APIURL:                 server.URL(),
			BotToken:               "123:abc",
			ChatID:                 "42",
			RequestTimeout:         time.Second,
			MaxAttempts:            3,
			BackoffInitialInterval: time.Millisecond,
			BackoffMaxInterval:     5 * time.Millisecond,
			MessagesPerSecond:      1000,
		}
		nclock = clock.NewClock()
		logger = lagertest.NewTestLogger("telegram")
		event = models.NotificationEvent{
			ID:         "event-1",
			Identity:   models.ProcessIdentity{PID: 100, StartTime: 5000},
			Name:       "busy",
			CPUPercent: 75,
			Threshold:  50,
		}
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		server.Close()
	})

	JustBeforeEach(func() {
		httpClient := helpers.CreateHTTPClient(helpers.ClientConfig{
			RequestTimeout:  conf.RequestTimeout,
			DialTimeout:     time.Second,
			IdleConnTimeout: time.Second,
			MaxIdleConns:    1,
		})
		notifier = NewTelegramNotifier(logger, conf, httpClient, nclock)
	})

	Context("when telegram accepts the message", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, sendPath),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSONRepresenting(map[string]string{"chat_id": "42", "text": FormatMessage(event)}),
				okResponse,
			))
		})

		It("posts the message once", func() {
			Expect(notifier.Notify(ctx, event)).To(Succeed())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
			Expect(logger.LogMessages()).To(ContainElement("telegram.telegram-notifier.notify.sent"))
		})
	})

	Context("when telegram rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]interface{}{
				"ok":          false,
				"error_code":  400,
				"description": "Bad Request: chat not found",
			}))
		})

		It("fails permanently without retrying", func() {
			err := notifier.Notify(ctx, event)
			Expect(err).To(HaveOccurred())
			Expect(IsTransient(err)).To(BeFalse())
			Expect(err.Error()).To(ContainSubstring("chat not found"))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("when telegram answers ok=false", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{"ok": false, "description": "odd"}))
		})

		It("fails permanently", func() {
			err := notifier.Notify(ctx, event)
			Expect(err).To(MatchError(ErrNotOK))
			Expect(IsTransient(err)).To(BeFalse())
		})
	})

	Context("when the success body cannot be decoded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>"))
		})

		It("fails permanently", func() {
			err := notifier.Notify(ctx, event)
			Expect(err).To(MatchError(ContainSubstring("undecodable response")))
			Expect(IsTransient(err)).To(BeFalse())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("when telegram fails transiently once", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusBadGateway, ""),
				okResponse,
			)
		})

		It("retries and succeeds", func() {
			Expect(notifier.Notify(ctx, event)).To(Succeed())
			Expect(server.ReceivedRequests()).To(HaveLen(2))
			Expect(logger.LogMessages()).To(ContainElement("telegram.telegram-notifier.notify.retrying"))
		})
	})

	Context("when telegram keeps failing", func() {
		BeforeEach(func() {
			server.RouteToHandler(http.MethodPost, sendPath, ghttp.RespondWith(http.StatusInternalServerError, ""))
		})

		It("gives up after the configured attempts", func() {
			err := notifier.Notify(ctx, event)
			Expect(err).To(MatchError(ErrRetriesExhausted))
			Expect(IsTransient(err)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(HaveLen(3))
		})
	})

	Context("when telegram asks to retry after a pause", func() {
		var fclock *fakeclock.FakeClock

		BeforeEach(func() {
			fclock = fakeclock.NewFakeClock(time.Now())
			nclock = fclock
			conf.BackoffMaxInterval = 5 * time.Second
			server.AppendHandlers(
				ghttp.RespondWithJSONEncoded(http.StatusTooManyRequests, map[string]interface{}{
					"ok":          false,
					"error_code":  429,
					"description": "Too Many Requests: retry after 2",
					"parameters":  map[string]int{"retry_after": 2},
				}),
				okResponse,
			)
		})

		It("waits for retry_after on the clock", func() {
			errCh := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				errCh <- notifier.Notify(ctx, event)
			}()

			Eventually(fclock.WatcherCount).Should(Equal(1))
			Consistently(errCh).ShouldNot(Receive())
			Expect(server.ReceivedRequests()).To(HaveLen(1))

			fclock.Increment(time.Second)
			Consistently(errCh, 100*time.Millisecond).ShouldNot(Receive())

			fclock.Increment(time.Second)
			Eventually(errCh).Should(Receive(BeNil()))
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	Context("when retry_after exceeds the maximum interval", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusTooManyRequests, map[string]interface{}{
				"ok":         false,
				"error_code": 429,
				"parameters": map[string]int{"retry_after": 60},
			}))
		})

		It("stops retrying", func() {
			err := notifier.Notify(ctx, event)
			Expect(err).To(MatchError(ErrRetriesExhausted))
			Expect(IsTransient(err)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("when the endpoint is unreachable", func() {
		BeforeEach(func() {
			conf.MaxAttempts = 1
			unreachable := ghttp.NewServer()
			conf.APIURL = unreachable.URL()
			unreachable.Close()
		})

		It("fails transiently without leaking the token", func() {
			err := notifier.Notify(ctx, event)
			Expect(IsTransient(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("bot123:*REDACTED*"))
			Expect(err.Error()).NotTo(ContainSubstring("123:abc"))
		})
	})

	Context("when the context is cancelled while waiting to retry", func() {
		BeforeEach(func() {
			conf.BackoffInitialInterval = time.Hour
			conf.BackoffMaxInterval = time.Hour
			server.RouteToHandler(http.MethodPost, sendPath, ghttp.RespondWith(http.StatusServiceUnavailable, ""))
		})

		It("returns promptly", func() {
			errCh := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				errCh <- notifier.Notify(ctx, event)
			}()

			Eventually(server.ReceivedRequests).Should(HaveLen(1))
			cancel()

			var err error
			Eventually(errCh).Should(Receive(&err))
			Expect(err).To(MatchError(context.Canceled))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("with a circuit breaker", func() {
		BeforeEach(func() {
			conf.MaxAttempts = 1
			conf.CircuitBreaker = config.CircuitBreakerConfig{
				ConsecutiveFailureCount: 1,
				BackOffInitialInterval:  time.Hour,
				BackOffMaxInterval:      time.Hour,
			}
			server.RouteToHandler(http.MethodPost, sendPath, ghttp.RespondWith(http.StatusInternalServerError, ""))
		})

		It("fails fast once tripped", func() {
			Expect(notifier.Breaker()).NotTo(BeNil())
			Expect(notifier.Notify(ctx, event)).NotTo(Succeed())
			Expect(notifier.Breaker().Tripped()).To(BeTrue())

			err := notifier.Notify(ctx, event)
			Expect(err).To(MatchError(ErrCircuitOpen))
			Expect(IsTransient(err)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("without a circuit breaker", func() {
		It("has none", func() {
			Expect(notifier.Breaker()).To(BeNil())
		})
	})
})
