// Package engine implements the monitoring-decision-action loop: it
// evaluates every monitored position against the pool's active bin,
// executes stop-loss and rebalance actions through the liquidity venue,
// records outcomes and emits events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/observability"
	"dlmm-rebalancer/internal/rangecalc"
	"dlmm-rebalancer/internal/storage"
	"dlmm-rebalancer/internal/venue"
	"dlmm-rebalancer/internal/volatility"
)

// Default engine parameters.
const (
	DefaultOutOfRangeThreshold = 0.15
	DefaultBaseRangeWidth      = 0.10
	DefaultVenueTimeout        = 30 * time.Second
	DefaultVolatilityWindow    = 30 * time.Minute
	DefaultWorkers             = 4

	// fallbackBinSpan is the half-width of the bin window used to seed
	// volatility when the sample store has too little recent data.
	fallbackBinSpan = 20

	// minStoredSamples below which the engine falls back to bin prices.
	minStoredSamples = 5
)

// Broadcaster pushes events to connected subscribers. Implemented by
// fanout.Hub; nil disables broadcasting.
type Broadcaster interface {
	Broadcast(e *domain.Event)
}

// Engine orchestrates per-position evaluation cycles.
type Engine struct {
	positions storage.PositionStore
	stopLoss  storage.StopLossConfigStore
	actions   storage.ActionStore
	alerts    storage.AlertStore
	samples   storage.PriceSampleStore

	venue     venue.LiquidityVenue
	estimator *volatility.Estimator
	hub       Broadcaster
	logger    *log.Logger

	outOfRangeThreshold float64
	baseRangeWidth      float64
	venueTimeout        time.Duration
	volatilityWindow    time.Duration
	workers             int
	feeCollectEvery     int // collect fees every Nth pass, 0 disables

	now func() time.Time

	// passMu rejects overlapping evaluation passes: venue calls have
	// side effects that are not idempotent.
	passMu sync.Mutex
	guard  *actionGuard

	stateMu     sync.Mutex
	lastCheckMs int64
	passCount   int
}

// Options configures an Engine. Stores and Venue are required.
type Options struct {
	Positions storage.PositionStore
	StopLoss  storage.StopLossConfigStore
	Actions   storage.ActionStore
	Alerts    storage.AlertStore
	Samples   storage.PriceSampleStore

	Venue     venue.LiquidityVenue
	Estimator *volatility.Estimator
	Hub       Broadcaster
	Logger    *log.Logger

	// OutOfRangeThreshold is the distance-to-edge fraction. Default: 0.15.
	OutOfRangeThreshold float64
	// BaseRangeWidth is the pre-volatility range width fraction. Default: 0.10.
	BaseRangeWidth float64
	// VenueTimeout bounds each remove/add/collect call. Default: 30s.
	VenueTimeout time.Duration
	// VolatilityWindow is how far back price samples are read. Default: 30m.
	VolatilityWindow time.Duration
	// Workers bounds evaluation concurrency within a pass. Default: 4.
	Workers int
	// FeeCollectEvery collects fees for in-range positions every Nth pass.
	// Default: 0 (disabled).
	FeeCollectEvery int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates an Engine.
func New(opts Options) *Engine {
	threshold := opts.OutOfRangeThreshold
	if threshold == 0 {
		threshold = DefaultOutOfRangeThreshold
	}
	baseWidth := opts.BaseRangeWidth
	if baseWidth == 0 {
		baseWidth = DefaultBaseRangeWidth
	}
	timeout := opts.VenueTimeout
	if timeout == 0 {
		timeout = DefaultVenueTimeout
	}
	window := opts.VolatilityWindow
	if window == 0 {
		window = DefaultVolatilityWindow
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = volatility.NewEstimator(volatility.Options{})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		positions:           opts.Positions,
		stopLoss:            opts.StopLoss,
		actions:             opts.Actions,
		alerts:              opts.Alerts,
		samples:             opts.Samples,
		venue:               opts.Venue,
		estimator:           estimator,
		hub:                 opts.Hub,
		logger:              logger,
		outOfRangeThreshold: threshold,
		baseRangeWidth:      baseWidth,
		venueTimeout:        timeout,
		volatilityWindow:    window,
		workers:             workers,
		feeCollectEvery:     opts.FeeCollectEvery,
		now:                 now,
		guard:               newActionGuard(),
	}
}

// PassResult summarizes one evaluation pass.
type PassResult struct {
	Evaluated  int
	Rebalanced int
	StoppedOut int
	Collected  int
	Skipped    int
	Failed     int
}

// ErrPassInProgress is returned when a pass is requested while another is
// still running.
var ErrPassInProgress = errors.New("evaluation pass already in progress")

// RunPass evaluates all monitored positions once. Positions are processed
// with bounded concurrency; per-position actions stay serialized through
// the guard table. A concurrent call returns ErrPassInProgress instead of
// overlapping.
func (e *Engine) RunPass(ctx context.Context) (*PassResult, error) {
	if !e.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.passMu.Unlock()

	passStart := time.Now()

	e.stateMu.Lock()
	e.passCount++
	collectFees := e.feeCollectEvery > 0 && e.passCount%e.feeCollectEvery == 0
	e.stateMu.Unlock()

	positions, err := e.positions.List(ctx)
	if err != nil {
		observability.RecordPass("error", time.Since(passStart).Seconds())
		return nil, fmt.Errorf("list positions: %w", err)
	}

	result := &PassResult{}
	var resultMu sync.Mutex

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for _, pos := range positions {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(p *domain.Position) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := e.evaluateGuarded(ctx, p, collectFees)

			resultMu.Lock()
			result.Evaluated++
			switch outcome {
			case outcomeRebalanced:
				result.Rebalanced++
			case outcomeStoppedOut:
				result.StoppedOut++
			case outcomeCollected:
				result.Collected++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed++
			}
			resultMu.Unlock()
		}(pos)
	}
	wg.Wait()

	nowMs := e.now().UnixMilli()
	e.stateMu.Lock()
	e.lastCheckMs = nowMs
	e.stateMu.Unlock()

	e.broadcast(&domain.Event{
		Type:        domain.EventAutoRebalanceStatus,
		TimestampMs: nowMs,
		Status: &domain.RebalanceStatus{
			Enabled:       true,
			Threshold:     e.outOfRangeThreshold,
			LastCheckMs:   nowMs,
			PositionCount: len(positions),
		},
	})

	observability.RecordPass("success", time.Since(passStart).Seconds())
	observability.UpdatePositionsTracked(len(positions))
	observability.DefaultMetrics.LastSuccessfulPass.Set(float64(nowMs) / 1000)

	return result, nil
}

// LastCheckMs returns the completion time of the most recent pass.
func (e *Engine) LastCheckMs() int64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastCheckMs
}

// OutOfRangeThreshold returns the configured distance-to-edge fraction.
func (e *Engine) OutOfRangeThreshold() float64 {
	return e.outOfRangeThreshold
}

type evalOutcome int

const (
	outcomeNone evalOutcome = iota
	outcomeRebalanced
	outcomeStoppedOut
	outcomeCollected
	outcomeSkipped
	outcomeFailed
)

// evaluateGuarded wraps Evaluate with the per-position action guard. A
// position whose previous action has not resolved is skipped this cycle.
func (e *Engine) evaluateGuarded(ctx context.Context, p *domain.Position, collectFees bool) evalOutcome {
	if !e.guard.tryAcquire(p.PositionID) {
		e.logger.Printf("position %s has an in-flight action, skipping", p.PositionID)
		observability.RecordSkip("in_flight_action")
		return outcomeSkipped
	}
	defer e.guard.release(p.PositionID)

	observability.DefaultMetrics.PositionsEvaluated.Inc()

	outcome, err := e.evaluate(ctx, p, collectFees)
	if err != nil {
		// Per-position failures never abort the pass for other positions.
		e.logger.Printf("evaluate position %s: %v", p.PositionID, err)
	}
	return outcome
}

// Evaluate runs one evaluation cycle for a single position, acquiring its
// action guard. Exported for manual per-position triggers.
func (e *Engine) Evaluate(ctx context.Context, positionID string) error {
	p, err := e.positions.GetByID(ctx, positionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.raiseAlert(ctx, domain.AlertWarning, "Position missing",
				fmt.Sprintf("position %s not found in store", positionID), positionID)
		}
		return fmt.Errorf("get position %s: %w", positionID, err)
	}

	if !e.guard.tryAcquire(p.PositionID) {
		return fmt.Errorf("position %s: action in flight", p.PositionID)
	}
	defer e.guard.release(p.PositionID)

	_, err = e.evaluate(ctx, p, false)
	return err
}

// evaluate is the per-position state machine: stop-loss check first, then
// the range check, then optional fee collection. The caller holds the
// position's action guard.
func (e *Engine) evaluate(ctx context.Context, p *domain.Position, collectFees bool) (evalOutcome, error) {
	snap, err := e.venue.GetPoolConfig(ctx, p.Pool)
	if err != nil {
		if errors.Is(err, venue.ErrPoolNotFound) {
			e.raiseAlert(ctx, domain.AlertWarning, "Pool missing",
				fmt.Sprintf("pool %s for position %s not found, skipping", p.Pool, p.PositionID), p.PositionID)
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("get pool config %s: %w", p.Pool, err)
	}

	// Stop-loss takes priority over range checks.
	triggered, reason, err := e.stopLossTriggered(ctx, p, snap)
	if err != nil {
		return outcomeFailed, err
	}
	if triggered {
		return e.executeStopLoss(ctx, p, reason)
	}

	if rangecalc.IsOutOfRange(snap.ActiveID, p.LowerBin, p.UpperBin, e.outOfRangeThreshold) {
		return e.executeRebalance(ctx, p, snap)
	}

	// In range, no action. Fee collection rides the configured cadence.
	if collectFees && (p.FeesX > 0 || p.FeesY > 0) {
		return e.executeCollectFees(ctx, p)
	}

	if p.State != domain.StateInRange {
		p.State = domain.StateInRange
		p.UpdatedAt = e.now().UnixMilli()
		if err := e.positions.Update(ctx, p); err != nil {
			return outcomeFailed, fmt.Errorf("update position state: %w", err)
		}
		e.broadcastPosition(p)
	}
	return outcomeNone, nil
}

// stopLossTriggered checks the position's stop-loss config against total
// return and impermanent loss.
func (e *Engine) stopLossTriggered(ctx context.Context, p *domain.Position, snap *domain.PoolSnapshot) (bool, string, error) {
	cfg, err := e.stopLoss.GetByPositionID(ctx, p.PositionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("get stop-loss config: %w", err)
	}
	if !cfg.Enabled {
		return false, "", nil
	}

	totalReturn := e.totalReturn(p, snap)
	if totalReturn <= -cfg.LossPct {
		return true, fmt.Sprintf("total return %.2f%% breached -%.2f%% threshold", totalReturn, cfg.LossPct), nil
	}

	if p.DepositPrice > 0 {
		il := rangecalc.ImpermanentLoss(snap.Price / p.DepositPrice)
		if il >= cfg.MaxILPct {
			return true, fmt.Sprintf("impermanent loss %.2f%% breached %.2f%% threshold", il, cfg.MaxILPct), nil
		}
	}

	return false, "", nil
}

// totalReturn computes the position's return percentage versus its deposit
// value, using the current pool price.
func (e *Engine) totalReturn(p *domain.Position, snap *domain.PoolSnapshot) float64 {
	if p.DepositValue <= 0 {
		return 0
	}
	value := e.positionValue(p, snap)
	return (value - p.DepositValue) / p.DepositValue * 100
}

// positionValue prices the position's holdings in quote units.
func (e *Engine) positionValue(p *domain.Position, snap *domain.PoolSnapshot) float64 {
	x := float64(p.AmountX) / math.Pow10(int(snap.TokenX.Decimals))
	y := float64(p.AmountY) / math.Pow10(int(snap.TokenY.Decimals))
	return x*snap.Price + y
}

// executeStopLoss removes all liquidity and deletes the position and its
// stop-loss config. A failed venue call retains the position unchanged.
func (e *Engine) executeStopLoss(ctx context.Context, p *domain.Position, reason string) (evalOutcome, error) {
	nowMs := e.now().UnixMilli()
	action := &domain.RebalanceAction{
		ActionID:   uuid.NewString(),
		PositionID: p.PositionID,
		Pool:       p.Pool,
		Kind:       domain.ActionStopLoss,
		Reason:     reason,
		OldRange:   domain.BinRange{Lower: p.LowerBin, Upper: p.UpperBin},
		Status:     domain.ActionPending,
		CreatedAt:  nowMs,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	err := e.venue.RemoveLiquidity(callCtx, p.PositionID, venue.BPS)
	cancel()

	if err != nil {
		action.Status = domain.ActionFailed
		action.Error = err.Error()
		e.recordAction(ctx, action)
		e.raiseAlert(ctx, domain.AlertError, "Stop-loss failed",
			fmt.Sprintf("position %s: remove liquidity failed: %v", p.PositionID, err), p.PositionID)
		observability.RecordStopLoss("failed")
		return outcomeFailed, fmt.Errorf("stop-loss remove liquidity: %w", err)
	}

	action.Status = domain.ActionSuccess
	e.recordAction(ctx, action)
	observability.RecordStopLoss("success")

	if err := e.positions.Delete(ctx, p.PositionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return outcomeFailed, fmt.Errorf("delete position after stop-loss: %w", err)
	}
	if err := e.stopLoss.Delete(ctx, p.PositionID); err != nil {
		return outcomeFailed, fmt.Errorf("delete stop-loss config: %w", err)
	}

	e.raiseAlert(ctx, domain.AlertWarning, "Stop-loss executed",
		fmt.Sprintf("position %s closed: %s", p.PositionID, reason), p.PositionID)

	p.State = domain.StateClosed
	e.broadcastPosition(p)

	e.logger.Printf("stop-loss executed for position %s: %s", p.PositionID, reason)
	return outcomeStoppedOut, nil
}

// executeRebalance computes a volatility-sized range around the current
// price and moves the position's liquidity into it. Remove must succeed
// before add is attempted; any failure retains the prior stored range so
// the next cycle re-evaluates from the same state.
func (e *Engine) executeRebalance(ctx context.Context, p *domain.Position, snap *domain.PoolSnapshot) (evalOutcome, error) {
	e.raiseAlert(ctx, domain.AlertWarning, "Position out of range",
		fmt.Sprintf("position %s: active bin %d near edge of [%d, %d]",
			p.PositionID, snap.ActiveID, p.LowerBin, p.UpperBin), p.PositionID)

	stat, err := e.poolVolatility(ctx, snap)
	if err != nil {
		if errors.Is(err, volatility.ErrInsufficientData) {
			e.raiseAlert(ctx, domain.AlertWarning, "Insufficient price data",
				fmt.Sprintf("pool %s: not enough samples for volatility, skipping cycle", p.Pool), p.PositionID)
			observability.RecordSkip("insufficient_data")
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("pool volatility %s: %w", p.Pool, err)
	}

	width := volatility.RecommendedRangeWidth(stat, e.baseRangeWidth)
	priceRange := rangecalc.OptimalRange(snap.Price, width)
	lowerBin, upperBin := rangecalc.BinsForRange(priceRange, snap.BinStep)

	nowMs := e.now().UnixMilli()
	oldRange := domain.BinRange{Lower: p.LowerBin, Upper: p.UpperBin}
	newRange := domain.BinRange{Lower: lowerBin, Upper: upperBin}
	action := &domain.RebalanceAction{
		ActionID:   uuid.NewString(),
		PositionID: p.PositionID,
		Pool:       p.Pool,
		Kind:       domain.ActionRebalance,
		Reason: fmt.Sprintf("active bin %d near edge of [%d, %d], volatility ratio %.4f",
			snap.ActiveID, oldRange.Lower, oldRange.Upper, stat.Ratio()),
		OldRange:  oldRange,
		NewRange:  &newRange,
		Status:    domain.ActionPending,
		CreatedAt: nowMs,
	}

	p.State = domain.StateRebalancing

	removeCtx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	err = e.venue.RemoveLiquidity(removeCtx, p.PositionID, venue.BPS)
	cancel()
	if err != nil {
		// Never add without a confirmed removal.
		return e.failRebalance(ctx, p, action, fmt.Errorf("remove liquidity: %w", err))
	}

	addCtx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	err = e.venue.AddLiquidity(addCtx, p.Pool, lowerBin, upperBin, p.AmountX, p.AmountY)
	cancel()
	if err != nil {
		return e.failRebalance(ctx, p, action, fmt.Errorf("add liquidity: %w", err))
	}

	action.Status = domain.ActionSuccess
	e.recordAction(ctx, action)
	observability.RecordRebalance("success")

	p.LowerBin = lowerBin
	p.UpperBin = upperBin
	p.State = domain.StateInRange
	p.UpdatedAt = nowMs
	if err := e.positions.Update(ctx, p); err != nil {
		return outcomeFailed, fmt.Errorf("update position after rebalance: %w", err)
	}

	e.raiseAlert(ctx, domain.AlertSuccess, "Position rebalanced",
		fmt.Sprintf("position %s moved from [%d, %d] to [%d, %d]",
			p.PositionID, oldRange.Lower, oldRange.Upper, lowerBin, upperBin), p.PositionID)
	e.broadcastPosition(p)

	e.logger.Printf("rebalanced position %s: [%d, %d] -> [%d, %d]",
		p.PositionID, oldRange.Lower, oldRange.Upper, lowerBin, upperBin)
	return outcomeRebalanced, nil
}

// failRebalance records the failed action, raises an error alert and keeps
// the stored range unchanged.
func (e *Engine) failRebalance(ctx context.Context, p *domain.Position, action *domain.RebalanceAction, cause error) (evalOutcome, error) {
	action.Status = domain.ActionFailed
	action.Error = cause.Error()
	e.recordAction(ctx, action)
	observability.RecordRebalance("failed")

	e.raiseAlert(ctx, domain.AlertError, "Rebalance failed",
		fmt.Sprintf("position %s: %v", p.PositionID, cause), p.PositionID)

	p.State = domain.StateFailed
	p.UpdatedAt = e.now().UnixMilli()
	if err := e.positions.Update(ctx, p); err != nil {
		e.logger.Printf("update position %s after failed rebalance: %v", p.PositionID, err)
	}
	e.broadcastPosition(p)

	return outcomeFailed, fmt.Errorf("rebalance position %s: %w", p.PositionID, cause)
}

// executeCollectFees claims accrued fees for an in-range position.
func (e *Engine) executeCollectFees(ctx context.Context, p *domain.Position) (evalOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	feesX, feesY, err := e.venue.CollectFees(callCtx, p.PositionID)
	cancel()
	if err != nil {
		e.raiseAlert(ctx, domain.AlertError, "Fee collection failed",
			fmt.Sprintf("position %s: %v", p.PositionID, err), p.PositionID)
		return outcomeFailed, fmt.Errorf("collect fees %s: %w", p.PositionID, err)
	}

	p.FeesX = 0
	p.FeesY = 0
	p.UpdatedAt = e.now().UnixMilli()
	if err := e.positions.Update(ctx, p); err != nil {
		return outcomeFailed, fmt.Errorf("update position after fee collection: %w", err)
	}

	e.raiseAlert(ctx, domain.AlertInfo, "Fees collected",
		fmt.Sprintf("position %s: collected %d / %d", p.PositionID, feesX, feesY), p.PositionID)
	e.broadcastPosition(p)
	observability.DefaultMetrics.FeeCollectionsTotal.Inc()

	return outcomeCollected, nil
}

// poolVolatility builds the volatility stat for a pool from stored price
// samples, falling back to a bin-price window around the active bin when
// the store has too little recent data.
func (e *Engine) poolVolatility(ctx context.Context, snap *domain.PoolSnapshot) (*domain.VolatilityStat, error) {
	nowMs := e.now().UnixMilli()
	start := nowMs - e.volatilityWindow.Milliseconds()

	var prices []float64
	if e.samples != nil {
		stored, err := e.samples.GetByTimeRange(ctx, snap.Pool, start, nowMs)
		if err != nil {
			e.logger.Printf("read price samples for %s: %v", snap.Pool, err)
		} else {
			for _, s := range stored {
				prices = append(prices, s.Price)
			}
		}
	}

	if len(prices) < minStoredSamples {
		binPrices, err := e.venue.GetBinPrices(ctx, snap.Pool, snap.ActiveID-fallbackBinSpan, snap.ActiveID+fallbackBinSpan)
		if err != nil {
			return nil, fmt.Errorf("get bin prices: %w", err)
		}
		prices = binPrices
	}

	return e.estimator.GetVolatility(snap.Pool, prices)
}

// PoolVolatility exposes the pool volatility lookup for the command surface.
func (e *Engine) PoolVolatility(ctx context.Context, pool string) (*domain.VolatilityStat, error) {
	snap, err := e.venue.GetPoolConfig(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("get pool config %s: %w", pool, err)
	}
	return e.poolVolatility(ctx, snap)
}

// recordAction appends the action and broadcasts a rebalance event.
func (e *Engine) recordAction(ctx context.Context, action *domain.RebalanceAction) {
	if err := e.actions.Insert(ctx, action); err != nil {
		e.logger.Printf("record action %s: %v", action.ActionID, err)
	}
	e.broadcast(&domain.Event{
		Type:        domain.EventRebalance,
		TimestampMs: action.CreatedAt,
		Rebalance:   action,
	})
}

// raiseAlert stores and broadcasts an alert.
func (e *Engine) raiseAlert(ctx context.Context, severity domain.AlertSeverity, title, message, positionID string) {
	alert := &domain.Alert{
		AlertID:    uuid.NewString(),
		Severity:   severity,
		Title:      title,
		Message:    message,
		PositionID: positionID,
		CreatedAt:  e.now().UnixMilli(),
	}
	if err := e.alerts.Insert(ctx, alert); err != nil {
		e.logger.Printf("store alert: %v", err)
	}
	e.broadcast(&domain.Event{
		Type:        domain.EventAlert,
		TimestampMs: alert.CreatedAt,
		Alert:       alert,
	})
}

func (e *Engine) broadcastPosition(p *domain.Position) {
	posCopy := *p
	e.broadcast(&domain.Event{
		Type:        domain.EventPositionUpdate,
		TimestampMs: e.now().UnixMilli(),
		Position:    &posCopy,
	})
}

func (e *Engine) broadcast(ev *domain.Event) {
	if e.hub != nil {
		e.hub.Broadcast(ev)
	}
}
