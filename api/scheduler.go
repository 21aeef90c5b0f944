/*
scheduler.go - Automated quarter-close scheduler

PURPOSE:
  Periodically checks whether the previous calendar quarter has finished
  without a distribution batch and automatically triggers processing.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Targets the most recently finished quarter
  - Relies on the storage uniqueness constraint for skip-if-done: a
    quarter that was already processed surfaces ErrAlreadyProcessed,
    which the scheduler treats as a quiet skip
  - The manual admin endpoint remains the primary trigger path

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewQuarterCloseScheduler(processor, params)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessDistribution endpoint (manual trigger)
  - distribution/processor.go: The batch itself
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Trungtrucpixel/vcareglobal-sub002/distribution"
	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// QuarterCloseScheduler handles automated quarterly distribution.
type QuarterCloseScheduler struct {
	Distributor   *distribution.Processor
	Params        equity.Params
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQuarterCloseScheduler creates a new scheduler.
func NewQuarterCloseScheduler(distributor *distribution.Processor, params equity.Params) *QuarterCloseScheduler {
	return &QuarterCloseScheduler{
		Distributor:   distributor,
		Params:        params,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (qs *QuarterCloseScheduler) Start() {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if !qs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	qs.ticker = time.NewTicker(qs.CheckInterval)
	qs.wg.Add(1)

	go qs.run()

	log.Printf("[Scheduler] Started with check interval: %v", qs.CheckInterval)
}

// Stop stops the scheduler.
func (qs *QuarterCloseScheduler) Stop() {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.ticker != nil {
		qs.ticker.Stop()
		close(qs.stop)
		qs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (qs *QuarterCloseScheduler) run() {
	defer qs.wg.Done()

	// Run immediately on start
	qs.checkAndProcess()

	for {
		select {
		case <-qs.ticker.C:
			qs.checkAndProcess()
		case <-qs.stop:
			return
		}
	}
}

func (qs *QuarterCloseScheduler) checkAndProcess() {
	ctx := context.Background()
	now := time.Now().UTC()

	target := equity.QuarterOf(now).Previous()
	value := target.String()

	if _, err := qs.Params.ValidateQuarter(value); err != nil {
		// Outside the configured year window; nothing to close.
		return
	}

	log.Printf("[Scheduler] Checking quarter %s at %v", value, now)

	result, err := qs.Distributor.Process(ctx, value, false)
	switch {
	case errors.Is(err, equity.ErrAlreadyProcessed):
		// Normal case after the first successful close.
	case err != nil:
		log.Printf("[Scheduler] Error processing %s: %v", value, err)
	default:
		log.Printf("[Scheduler] Closed %s: pool=%s, records=%d",
			value, result.Period.Pool.String(), len(result.Records))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (qs *QuarterCloseScheduler) RunNow() {
	qs.checkAndProcess()
}
