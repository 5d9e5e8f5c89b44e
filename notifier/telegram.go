package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/cpuwatcher/config"
	"code.cloudfoundry.org/cpuwatcher/helpers"
	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
	"github.com/cenkalti/backoff/v4"
	circuit "github.com/rubyist/circuitbreaker"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 64 * 1024

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after"`
}

type sendMessageResponse struct {
	OK          bool                `json:"ok"`
	Description string              `json:"description"`
	ErrorCode   int                 `json:"error_code"`
	Parameters  *responseParameters `json:"parameters"`
}

type TelegramNotifier struct {
	logger          lager.Logger
	httpClient      *http.Client
	clock           clock.Clock
	endpoint        string
	chatID          string
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	limiter         *rate.Limiter
	breaker         *circuit.Breaker
}

var _ Notifier = &TelegramNotifier{}

func NewTelegramNotifier(logger lager.Logger, conf config.TelegramConfig, httpClient *http.Client, clock clock.Clock) *TelegramNotifier {
	burst := int(conf.MessagesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &TelegramNotifier{
		logger:          logger.Session("telegram-notifier"),
		httpClient:      httpClient,
		clock:           clock,
		endpoint:        strings.TrimRight(conf.APIURL, "/") + "/bot" + conf.BotToken + "/sendMessage",
		chatID:          conf.ChatID,
		maxAttempts:     conf.MaxAttempts,
		initialInterval: conf.BackoffInitialInterval,
		maxInterval:     conf.BackoffMaxInterval,
		limiter:         rate.NewLimiter(rate.Limit(conf.MessagesPerSecond), burst),
		breaker:         newBreaker(conf.CircuitBreaker),
	}
}

// newBreaker returns nil when the breaker is disabled.
func newBreaker(conf config.CircuitBreakerConfig) *circuit.Breaker {
	if conf.ConsecutiveFailureCount <= 0 {
		return nil
	}
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = conf.BackOffInitialInterval
	bf.MaxInterval = conf.BackOffMaxInterval
	bf.MaxElapsedTime = 0
	bf.RandomizationFactor = 0
	bf.Multiplier = 2
	bf.Reset()
	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    bf,
		ShouldTrip: circuit.ConsecutiveTripFunc(conf.ConsecutiveFailureCount),
	})
}

// Breaker exposes the endpoint breaker, nil when disabled.
func (n *TelegramNotifier) Breaker() *circuit.Breaker {
	return n.breaker
}

func (n *TelegramNotifier) Notify(ctx context.Context, event models.NotificationEvent) error {
	logger := n.logger.Session("notify", lager.Data{"event-id": event.ID, "process": event.Identity.String()})

	if n.breaker == nil {
		return n.deliver(ctx, logger, event)
	}

	if !n.breaker.Ready() {
		logger.Info("circuit-tripped", lager.Data{"consecutive-failures": n.breaker.ConsecFailures()})
		return &DeliveryError{Transient: true, Err: ErrCircuitOpen}
	}

	err := n.deliver(ctx, logger, event)
	switch {
	case err == nil:
		n.breaker.Success()
	case ctx.Err() != nil:
		// shutting down, the endpoint did nothing wrong
	default:
		n.breaker.Fail()
	}
	return err
}

func (n *TelegramNotifier) deliver(ctx context.Context, logger lager.Logger, event models.NotificationEvent) error {
	text := FormatMessage(event)
	bo := n.newBackOff()

	var lastErr error
	attempt := 1
	for ; attempt <= n.maxAttempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for send slot: %w", err)
		}

		err := n.send(ctx, text)
		if err == nil {
			logger.Info("sent", lager.Data{"attempt": attempt})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("delivery aborted: %w", ctxErr)
		}

		lastErr = err
		if !IsTransient(err) {
			logger.Error("failed-permanently", err, lager.Data{"attempt": attempt})
			return err
		}
		if attempt == n.maxAttempts {
			break
		}

		wait := bo.NextBackOff()
		var de *DeliveryError
		if errors.As(err, &de) && de.RetryAfter > wait {
			if de.RetryAfter > n.maxInterval {
				logger.Info("retry-after-exceeds-max-interval", lager.Data{"retry-after": de.RetryAfter.String()})
				break
			}
			wait = de.RetryAfter
		}

		logger.Info("retrying", lager.Data{"attempt": attempt, "wait": wait.String(), "error": err.Error()})
		if err := n.sleep(ctx, wait); err != nil {
			return fmt.Errorf("delivery aborted: %w", err)
		}
	}

	return fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempt, lastErr)
}

func (n *TelegramNotifier) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.initialInterval
	bo.MaxInterval = n.maxInterval
	bo.MaxElapsedTime = 0
	bo.Clock = n.clock
	bo.Reset()
	return bo
}

func (n *TelegramNotifier) sleep(ctx context.Context, d time.Duration) error {
	timer := n.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text})
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to marshal message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: errors.New(helpers.RedactBotToken(err.Error()))}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Transient: true, Err: errors.New(helpers.RedactBotToken(err.Error()))}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &DeliveryError{Transient: true, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var parsed sendMessageResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decodeErr != nil {
			return &DeliveryError{StatusCode: resp.StatusCode, Err: fmt.Errorf("undecodable response: %w", decodeErr)}
		}
		if !parsed.OK {
			return &DeliveryError{StatusCode: resp.StatusCode, Description: parsed.Description, Err: ErrNotOK}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		de := &DeliveryError{Transient: true, StatusCode: resp.StatusCode, Description: parsed.Description}
		if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			de.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
		}
		return de
	case resp.StatusCode >= 500:
		return &DeliveryError{Transient: true, StatusCode: resp.StatusCode, Description: parsed.Description}
	default:
		return &DeliveryError{StatusCode: resp.StatusCode, Description: parsed.Description}
	}
}
