/*
scheduler.go - Automated monthly bill generation

PURPOSE:
  Periodically makes sure the current month's bills exist for every active
  student, so administrators do not have to trigger generation by hand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each check bills the current month for the configured category
  - Generation skips students already billed, so repeated checks within a
    month do nothing after the first

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := finance.NewMonthlyScheduler(svc, "spp", decimal.NewFromInt(150000))
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - service.go: GeneratePayments
  - api/handlers.go: Manual generation endpoint
*/
package finance

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
)

// MonthlyScheduler handles automated bill generation.
type MonthlyScheduler struct {
	Service       *Service
	Category      string
	Amount        decimal.Decimal
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMonthlyScheduler creates a new scheduler.
func NewMonthlyScheduler(svc *Service, category string, amount decimal.Decimal) *MonthlyScheduler {
	return &MonthlyScheduler{
		Service:       svc,
		Category:      category,
		Amount:        amount,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Starting a running scheduler is a no-op; a
// stopped one can be started again.
func (ms *MonthlyScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.Service.Logger.Info("scheduler_disabled")
		return
	}
	if ms.ticker != nil {
		return
	}

	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.stop = make(chan struct{})
	ms.wg.Add(1)

	go ms.run(ms.ticker.C, ms.stop)

	ms.Service.Logger.Info("scheduler_started", "interval", ms.CheckInterval, "category", ms.Category)
}

// Stop stops the scheduler.
func (ms *MonthlyScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		ms.ticker = nil
		ms.Service.Logger.Info("scheduler_stopped")
	}
}

func (ms *MonthlyScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer ms.wg.Done()

	// Run immediately on start
	ms.checkAndProcess()

	for {
		select {
		case <-tick:
			ms.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (ms *MonthlyScheduler) checkAndProcess() GenerateResult {
	ctx := context.Background()
	today := generic.Today(ms.Service.Clock)

	res, err := ms.Service.GeneratePayments(ctx, GenerateRequest{
		Period: generic.BillingPeriod{
			Category: ms.Category,
			Month:    int(today.Month()),
			Year:     today.Year(),
		},
		Amount: ms.Amount,
	})
	if err != nil {
		ms.Service.Logger.Error("scheduled_generation_failed", "category", ms.Category, "error", err)
	}
	return res
}

// RunNow triggers an immediate check (for testing/admin).
func (ms *MonthlyScheduler) RunNow() GenerateResult {
	return ms.checkAndProcess()
}

// NextRunTime returns when the next scheduled check will occur.
func (ms *MonthlyScheduler) NextRunTime() time.Time {
	return ms.Service.Clock().Add(ms.CheckInterval)
}
