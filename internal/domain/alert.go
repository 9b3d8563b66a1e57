package domain

// AlertSeverity classifies an alert for display and filtering.
type AlertSeverity string

// Alert severities.
const (
	AlertInfo    AlertSeverity = "INFO"
	AlertWarning AlertSeverity = "WARNING"
	AlertError   AlertSeverity = "ERROR"
	AlertSuccess AlertSeverity = "SUCCESS"
)

// Alert is a user-facing notification produced by the engine or the
// stop-loss path. Immutable except for the Read flag.
// Corresponds to alerts table in PostgreSQL.
type Alert struct {
	AlertID    string        // PRIMARY KEY, uuid
	Severity   AlertSeverity // INFO | WARNING | ERROR | SUCCESS
	Title      string        // short summary line
	Message    string        // full text
	PositionID string        // optional related position ("" when none)
	Read       bool          // consumer-set read flag
	CreatedAt  int64         // Unix timestamp in milliseconds
}
