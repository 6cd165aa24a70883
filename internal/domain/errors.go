package domain

import "errors"

// Provider error kinds. The router's fallback loop switches on these; workers
// convert them into per-ticker outcome records.
var (
	// ErrRateExceeded means the provider's daily call budget is exhausted.
	// Minute-bucket waits are handled inside the router; this kind surfaces
	// only when no amount of waiting will free up budget today.
	ErrRateExceeded = errors.New("provider rate limit exceeded")

	// ErrProviderDown means the provider is unreachable or its circuit
	// breaker is open.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrTickerUnknown means the provider does not recognise the symbol.
	// Usually indicates a delisting; Phase 6 probes before deactivating.
	ErrTickerUnknown = errors.New("ticker unknown to provider")

	// ErrDataInvalid means the response parsed but violated an invariant
	// (malformed OHLC, wrong date, unparseable schema).
	ErrDataInvalid = errors.New("provider data invalid")

	// ErrTransient is a retryable failure (network blip, provider 5xx).
	ErrTransient = errors.New("transient provider error")
)

// ErrDBUnavailable is fatal for a run: the orchestrator transitions to
// Aborted instead of continuing with partial phases.
var ErrDBUnavailable = errors.New("database unavailable")
