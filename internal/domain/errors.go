package domain

import "errors"

// Configuration validation errors. These are rejected at entry points and
// never reach the evaluation loop.
var (
	// ErrInvalidPosition is returned for positions missing required identifiers.
	ErrInvalidPosition = errors.New("invalid position: missing id or pool")

	// ErrInvalidRange is returned when lowerBin >= upperBin.
	ErrInvalidRange = errors.New("invalid range: lower bin must be below upper bin")

	// ErrInvalidStopLoss is returned for malformed stop-loss thresholds.
	ErrInvalidStopLoss = errors.New("invalid stop-loss config: thresholds must be in (0, 100]")
)
