// Package bot renders operator commands as plain text for a chat
// transport. The package is transport-agnostic; cmd/server exposes it
// over HTTP and the Notifier forwards engine events to a chat webhook.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/engine"
	"dlmm-rebalancer/internal/rangecalc"
	"dlmm-rebalancer/internal/storage"
	"dlmm-rebalancer/internal/venue"
	"dlmm-rebalancer/internal/volatility"
)

// ErrUnknownCommand is returned for input that matches no command.
var ErrUnknownCommand = errors.New("unknown command")

// PassRunner triggers a manual evaluation pass. Implemented by
// scheduler.Scheduler.
type PassRunner interface {
	RunOnce(ctx context.Context) (*engine.PassResult, error)
}

// EngineReader exposes the engine state the commands report on.
// Implemented by engine.Engine.
type EngineReader interface {
	PoolVolatility(ctx context.Context, pool string) (*domain.VolatilityStat, error)
	LastCheckMs() int64
	OutOfRangeThreshold() float64
}

// Commander resolves command lines against stores, the engine and the
// venue.
type Commander struct {
	positions storage.PositionStore
	stopLoss  storage.StopLossConfigStore
	actions   storage.ActionStore
	alerts    storage.AlertStore

	venue  venue.LiquidityVenue
	eng    EngineReader
	runner PassRunner
	logger *log.Logger
}

// Options configures a Commander.
type Options struct {
	Positions storage.PositionStore
	StopLoss  storage.StopLossConfigStore
	Actions   storage.ActionStore
	Alerts    storage.AlertStore

	Venue  venue.LiquidityVenue
	Engine EngineReader
	Runner PassRunner
	Logger *log.Logger
}

// New creates a Commander.
func New(opts Options) *Commander {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Commander{
		positions: opts.Positions,
		stopLoss:  opts.StopLoss,
		actions:   opts.Actions,
		alerts:    opts.Alerts,
		venue:     opts.Venue,
		eng:       opts.Engine,
		runner:    opts.Runner,
		logger:    logger,
	}
}

// Execute parses one command line and returns the rendered reply.
// Commands: monitor [pool], rebalance, stats, alerts, volatility <pool>.
func (c *Commander) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", ErrUnknownCommand
	}

	switch strings.ToLower(fields[0]) {
	case "monitor":
		pool := ""
		if len(fields) > 1 {
			pool = fields[1]
		}
		return c.monitor(ctx, pool)
	case "rebalance":
		return c.rebalance(ctx)
	case "stats":
		return c.stats(ctx)
	case "alerts":
		return c.ackAlerts(ctx)
	case "volatility":
		if len(fields) < 2 {
			return "", fmt.Errorf("%w: volatility needs a pool address", ErrUnknownCommand)
		}
		return c.poolVolatility(ctx, fields[1])
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

// monitor lists tracked positions with their range, the pool's active
// bin and whether the range check would fire. A pool argument restricts
// the listing to that pool.
func (c *Commander) monitor(ctx context.Context, pool string) (string, error) {
	var (
		positions []*domain.Position
		err       error
	)
	if pool != "" {
		positions, err = c.positions.ListByPool(ctx, pool)
	} else {
		positions, err = c.positions.List(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("list positions: %w", err)
	}
	if len(positions) == 0 {
		if pool != "" {
			return fmt.Sprintf("No positions monitored on %s.", shortAddr(pool)), nil
		}
		return "No positions monitored.", nil
	}

	threshold := c.eng.OutOfRangeThreshold()

	var b strings.Builder
	fmt.Fprintf(&b, "Monitoring %d position(s), threshold %.0f%%:\n", len(positions), threshold*100)
	for _, p := range positions {
		activeBin, err := c.venue.GetActiveBin(ctx, p.Pool)
		if err != nil {
			fmt.Fprintf(&b, "  %s  pool %s  [%d, %d]  state %s  active bin unavailable: %v\n",
				p.PositionID, shortAddr(p.Pool), p.LowerBin, p.UpperBin, p.State, err)
			continue
		}
		status := "in range"
		if rangecalc.IsOutOfRange(activeBin, p.LowerBin, p.UpperBin, threshold) {
			status = "OUT OF RANGE"
		}
		fmt.Fprintf(&b, "  %s  pool %s  [%d, %d]  active %d  state %s  %s\n",
			p.PositionID, shortAddr(p.Pool), p.LowerBin, p.UpperBin, activeBin, p.State, status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// rebalance triggers a manual evaluation pass and reports its summary.
func (c *Commander) rebalance(ctx context.Context) (string, error) {
	result, err := c.runner.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrPassInProgress) {
			return "A pass is already running; try again shortly.", nil
		}
		return "", err
	}
	return fmt.Sprintf("Pass complete: evaluated %d, rebalanced %d, stopped out %d, collected %d, skipped %d, failed %d",
		result.Evaluated, result.Rebalanced, result.StoppedOut, result.Collected, result.Skipped, result.Failed), nil
}

// stats summarizes positions, per-pool counts, recent action outcomes and
// unread alerts.
func (c *Commander) stats(ctx context.Context) (string, error) {
	positions, err := c.positions.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list positions: %w", err)
	}

	byPool := make(map[string]int)
	for _, p := range positions {
		byPool[p.Pool]++
	}
	pools := make([]string, 0, len(byPool))
	for pool := range byPool {
		pools = append(pools, pool)
	}
	sort.Strings(pools)

	actions, err := c.actions.GetRecent(ctx, 50)
	if err != nil {
		return "", fmt.Errorf("list actions: %w", err)
	}
	var succeeded, failed int
	for _, a := range actions {
		switch a.Status {
		case domain.ActionSuccess:
			succeeded++
		case domain.ActionFailed:
			failed++
		}
	}

	unread, err := c.alerts.ListUnread(ctx)
	if err != nil {
		return "", fmt.Errorf("list unread alerts: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Positions: %d across %d pool(s)\n", len(positions), len(pools))
	for _, pool := range pools {
		fmt.Fprintf(&b, "  %s: %d\n", shortAddr(pool), byPool[pool])
	}
	fmt.Fprintf(&b, "Recent actions: %d succeeded, %d failed (last %d)\n", succeeded, failed, len(actions))
	fmt.Fprintf(&b, "Unread alerts: %d\n", len(unread))
	if last := c.eng.LastCheckMs(); last > 0 {
		fmt.Fprintf(&b, "Last check: %d", last)
	} else {
		b.WriteString("Last check: never")
	}
	return b.String(), nil
}

// ackAlerts lists unread alerts and marks them read, so the next stats or
// heartbeat no longer reports them.
func (c *Commander) ackAlerts(ctx context.Context) (string, error) {
	unread, err := c.alerts.ListUnread(ctx)
	if err != nil {
		return "", fmt.Errorf("list unread alerts: %w", err)
	}
	if len(unread) == 0 {
		return "No unread alerts.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d unread alert(s):\n", len(unread))
	for _, a := range unread {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", a.Severity, a.Title, a.Message)
		if err := c.alerts.MarkRead(ctx, a.AlertID); err != nil {
			c.logger.Printf("mark alert %s read: %v", a.AlertID, err)
		}
	}
	b.WriteString("Marked read.")
	return b.String(), nil
}

// poolVolatility reports the estimator's view of one pool.
func (c *Commander) poolVolatility(ctx context.Context, pool string) (string, error) {
	stat, err := c.eng.PoolVolatility(ctx, pool)
	if err != nil {
		if errors.Is(err, volatility.ErrInsufficientData) {
			return fmt.Sprintf("Pool %s: not enough price data for an estimate.", shortAddr(pool)), nil
		}
		if errors.Is(err, venue.ErrPoolNotFound) {
			return fmt.Sprintf("Pool %s not found.", shortAddr(pool)), nil
		}
		return "", err
	}

	level := "low"
	if volatility.IsHighVolatility(stat, volatility.DefaultHighVolRatio) {
		level = "HIGH"
	}
	return fmt.Sprintf("Pool %s volatility: mean %.6f, stddev %.6f, ratio %.4f (%s, %d samples)",
		shortAddr(pool), stat.Mean, stat.StdDev, stat.Ratio(), level, stat.Samples), nil
}

// shortAddr abbreviates a base58 address for display.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
