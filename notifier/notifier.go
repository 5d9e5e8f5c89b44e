package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/cpuwatcher/models"
)

var (
	ErrRetriesExhausted = errors.New("notification retries exhausted")
	ErrCircuitOpen      = errors.New("notification circuit breaker is open")
	ErrNotOK            = errors.New("telegram answered ok=false")
)

type Notifier interface {
	// Notify delivers one event. A nil error means the endpoint accepted it.
	Notify(ctx context.Context, event models.NotificationEvent) error
}

// DeliveryError describes a failed delivery attempt. Transient errors may
// succeed if retried; permanent ones will not.
type DeliveryError struct {
	Transient   bool
	StatusCode  int
	Description string
	RetryAfter  time.Duration
	Err         error
}

func (e *DeliveryError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s delivery failure", kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Transient
}

// FormatMessage renders the chat text for an event.
func FormatMessage(event models.NotificationEvent) string {
	started := "?"
	if !event.StartedAt.IsZero() {
		started = event.StartedAt.UTC().Format(time.RFC3339)
	}
	command := event.CommandLine
	if command == "" {
		command = event.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠ Process is using more than %.1f%% CPU\n", event.Threshold)
	fmt.Fprintf(&b, "Name: %s\n", event.Name)
	fmt.Fprintf(&b, "PID: %d\n", event.Identity.PID)
	fmt.Fprintf(&b, "CPU: %.1f%%\n", event.CPUPercent)
	fmt.Fprintf(&b, "Started: %s\n", started)
	fmt.Fprintf(&b, "Command: %s", command)
	return b.String()
}
