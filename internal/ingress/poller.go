package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"energybot/internal/ledger"
	"energybot/internal/payments"
)

// DefaultPollInterval is how often pending payments are re-checked.
const DefaultPollInterval = 40 * time.Second

// SweepResult counts what one poll tick did.
type SweepResult struct {
	Checked int
	Settled int
	Failed  int
}

// Poller periodically re-checks every pending payment with the gateway.
// It is the safety net for missed webhooks.
type Poller struct {
	payments *ledger.Payments
	checker  *Checker
	interval time.Duration
	sched    gocron.Scheduler
	log      *slog.Logger
}

func NewPoller(p *ledger.Payments, checker *Checker, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{payments: p, checker: checker, interval: interval, log: log.With("component", "poller")}
}

// Start schedules the sweep. A tick that is still running when the next one
// is due is skipped rather than run in parallel.
func (p *Poller) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() { p.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("payment-poller"),
	)
	if err != nil {
		sched.Shutdown()
		return fmt.Errorf("schedule poller: %w", err)
	}
	p.sched = sched
	sched.Start()
	p.log.Info("poller started", "interval", p.interval)
	return nil
}

// Stop waits for a running sweep and stops the schedule.
func (p *Poller) Stop() error {
	if p.sched == nil {
		return nil
	}
	return p.sched.Shutdown()
}

// Sweep checks every pending payment once. A failure of one payment,
// including a panic, is logged and does not stop the others.
func (p *Poller) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	p.resume(ctx, &res)

	pending, err := p.payments.GetAllPending(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "list pending payments", "error", err)
		return res
	}

	for _, payment := range pending {
		if ctx.Err() != nil {
			break
		}
		res.Checked++
		outcome, err := p.checkOne(ctx, payment.ExternalPaymentID)
		if err != nil {
			res.Failed++
			p.log.ErrorContext(ctx, "pending payment check failed",
				"payment_id", payment.ExternalPaymentID, "error", err)
			continue
		}
		if outcome == OutcomeSettled {
			res.Settled++
		}
	}
	if res.Checked > 0 {
		p.log.InfoContext(ctx, "sweep finished", "checked", res.Checked, "settled", res.Settled, "failed", res.Failed)
	}
	return res
}

// resume settles payments left in succeeded by an interrupted settlement.
// The gateway already confirmed them, so it is not asked again.
func (p *Poller) resume(ctx context.Context, res *SweepResult) {
	stuck, err := p.payments.GetAllSucceeded(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "list succeeded payments", "error", err)
		return
	}
	for _, payment := range stuck {
		if ctx.Err() != nil {
			return
		}
		res.Checked++
		outcome, err := p.guard(func() (Outcome, error) {
			return p.checker.Apply(ctx, payment.ExternalPaymentID, payments.StatusSucceeded)
		})
		if err != nil {
			res.Failed++
			p.log.ErrorContext(ctx, "resume settlement failed",
				"payment_id", payment.ExternalPaymentID, "error", err)
			continue
		}
		if outcome == OutcomeSettled {
			res.Settled++
			p.log.WarnContext(ctx, "settlement resumed", "payment_id", payment.ExternalPaymentID)
		}
	}
}

func (p *Poller) checkOne(ctx context.Context, externalID string) (Outcome, error) {
	return p.guard(func() (Outcome, error) { return p.checker.Check(ctx, externalID) })
}

func (p *Poller) guard(fn func() (Outcome, error)) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
