package domain

// StopLossConfig guards one position. Consulted every evaluation cycle;
// deleted together with the position it guards.
// Corresponds to stop_loss_configs table in PostgreSQL.
type StopLossConfig struct {
	PositionID string  // position this config guards
	Enabled    bool    // disabled configs are stored but ignored
	LossPct    float64 // close when total return <= -LossPct (percent, > 0)
	MaxILPct   float64 // close when impermanent loss >= MaxILPct (percent, > 0)
	CreatedAt  int64   // Unix timestamp in milliseconds
	UpdatedAt  int64   // last update timestamp (ms)
}

// Validate rejects malformed thresholds at configuration time so they
// never reach evaluation.
func (c *StopLossConfig) Validate() error {
	if c.PositionID == "" {
		return ErrInvalidStopLoss
	}
	if c.LossPct <= 0 || c.LossPct > 100 {
		return ErrInvalidStopLoss
	}
	if c.MaxILPct <= 0 || c.MaxILPct > 100 {
		return ErrInvalidStopLoss
	}
	return nil
}
