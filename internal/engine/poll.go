package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller drives fetch-and-reconcile cycles at a fixed interval. At most
// one cycle is in flight: a tick that fires while a cycle runs is
// skipped entirely, not queued. After Stop no cycle runs again.
type Poller struct {
	cron     *cron.Cron
	interval time.Duration
	run      func(context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool

	ctx    context.Context    // cancelled on Stop
	cancel context.CancelFunc // cancels ctx
	wg     sync.WaitGroup     // tracks in-flight cycles
}

// NewPoller creates a poller invoking run every interval.
func NewPoller(interval time.Duration, run func(context.Context) error) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cron:     cron.New(),
		interval: interval,
		run:      run,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLogger sets the logger for the poller.
func (p *Poller) WithLogger(logger *slog.Logger) *Poller {
	p.logger = logger
	return p
}

// Start begins ticking.
func (p *Poller) Start() error {
	spec := "@every " + p.interval.String()
	if _, err := p.cron.AddFunc(spec, p.tick); err != nil {
		return fmt.Errorf("schedule poll %q: %w", spec, err)
	}
	p.cron.Start()
	p.logger.Info("poller started", "interval", p.interval)
	return nil
}

func (p *Poller) tick() {
	if !p.begin() {
		return
	}
	p.cycle()
}

// begin claims the single cycle slot. It returns false when the poller
// is stopped or a cycle is already in flight.
func (p *Poller) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.running {
		return false
	}
	p.running = true
	p.wg.Add(1)
	return true
}

func (p *Poller) cycle() {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if err := p.run(p.ctx); err != nil {
		p.logger.Debug("poll cycle failed", "error", err)
	}
}

// Stop halts the schedule, cancels the running cycle, and waits for it
// to finish. Returns a context that is done when all work completes.
func (p *Poller) Stop() context.Context {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	cronCtx := p.cron.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		p.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}
