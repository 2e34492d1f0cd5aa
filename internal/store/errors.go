package store

import (
	"fmt"
	"strings"
	"time"
)

// ProviderError wraps a single upstream failure: network error, non-2xx
// status or an unparseable payload.
type ProviderError struct {
	Provider string
	Op       string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AllProvidersFailedError is returned when every provider failed in every
// pass for one operation. It carries the operation, its key arguments and
// the per-provider causes.
type AllProvidersFailedError struct {
	Op   string
	Key  string
	Errs []error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("all providers failed for %s %s: %s", e.Op, e.Key, strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Unwrap() []error { return e.Errs }

// NoTradingDayFoundError is returned when a closing-price lookup finds no
// bar at or before the requested time within the lookback window.
type NoTradingDayFoundError struct {
	Time     time.Time
	Lookback time.Duration
}

func (e *NoTradingDayFoundError) Error() string {
	return fmt.Sprintf("no trading day at or before %s within %s", e.Time.Format(time.RFC3339), e.Lookback)
}
