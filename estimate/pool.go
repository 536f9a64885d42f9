package estimate

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/bcdannyboy/bahra/models"
	"github.com/shirou/gopsutil/cpu"
	mpb "github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"golang.org/x/sync/errgroup"
)

// EstimateAll fits every expiry of ticker between minDTE and maxDTE inclusive
// on a bounded worker pool. Expiries that fail to calibrate are logged and
// left out. A nil progress writer disables the progress bar. Results are
// ordered by days to expiry.
func (e *Estimator) EstimateAll(ctx context.Context, ticker string, minDTE, maxDTE int, progress io.Writer) ([]*Estimate, error) {
	start := time.Now()
	raw, err := e.Chains.Chain(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain for %s: %w", ticker, err)
	}

	var dtes []int
	for _, d := range models.Expiries(raw) {
		if d >= minDTE && d <= maxDTE {
			dtes = append(dtes, d)
		}
	}
	if len(dtes) == 0 {
		return nil, fmt.Errorf("%s [%d, %d]: %w", ticker, minDTE, maxDTE, ErrNoExpiries)
	}

	workers := e.workers()
	e.logger().Info("calibrating expiries", "ticker", ticker, "expiries", len(dtes), "workers", workers)

	p := mpb.New(mpb.WithOutput(progress), mpb.WithWidth(64))
	bar := p.AddBar(int64(len(dtes)),
		mpb.PrependDecorators(
			decor.Name(ticker),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("(%d / %d)", decor.WCSyncSpace),
		),
	)

	var (
		mu        sync.Mutex
		estimates []*Estimate
	)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, dte := range dtes {
		dte := dte
		g.Go(func() error {
			defer bar.Increment()
			if ctx.Err() != nil {
				return nil
			}
			est, err := e.fitExpiry(ctx, ticker, raw, dte)
			if err != nil {
				e.logger().Error("calibration failed", "ticker", ticker, "dte", dte, "error", err)
				return nil
			}
			mu.Lock()
			estimates = append(estimates, est)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(estimates, func(i, j int) bool {
		return estimates[i].DaysToExpiry < estimates[j].DaysToExpiry
	})
	e.logger().Info("calibration complete",
		"ticker", ticker,
		"fitted", len(estimates),
		"failed", len(dtes)-len(estimates),
		"duration", time.Since(start),
	)
	return estimates, nil
}

func (e *Estimator) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}
