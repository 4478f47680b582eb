package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/pipeline"
)

const (
	MinInterval     = 1 * time.Second
	MaxInterval     = 10 * time.Second
	DefaultInterval = 3 * time.Second

	defaultCycleTimeout = 30 * time.Second
)

// RefreshSettings are the user-facing refresh controls. They are always
// passed and stored by value.
type RefreshSettings struct {
	Interval time.Duration `json:"-"`
	Enabled  bool          `json:"enabled"`
}

// Normalize clamps the interval to 1..10s. A zero interval means the default.
func (s RefreshSettings) Normalize() RefreshSettings {
	switch {
	case s.Interval == 0:
		s.Interval = DefaultInterval
	case s.Interval < MinInterval:
		s.Interval = MinInterval
	case s.Interval > MaxInterval:
		s.Interval = MaxInterval
	}
	return s
}

type RefreshLoopConfig struct {
	Settings     RefreshSettings
	CycleTimeout time.Duration
	Metrics      *metrics.Metrics
	Log          zerolog.Logger
}

// RefreshLoop repeatedly fetches the trade log, rebuilds the price series and
// hands every cycle result to the consumer. Each cycle is independent.
type RefreshLoop struct {
	proc         *pipeline.Processor
	src          pipeline.Source
	consumer     pipeline.Consumer
	metrics      *metrics.Metrics
	log          zerolog.Logger
	cycleTimeout time.Duration

	// serializes cycles between the loop and manual triggers
	cycleMu sync.Mutex

	mu       sync.Mutex
	settings RefreshSettings
	last     *pipeline.Cycle
	running  bool
	stop     context.CancelFunc
	done     chan struct{}

	wakeCh chan struct{}
}

func NewRefreshLoop(proc *pipeline.Processor, src pipeline.Source, consumer pipeline.Consumer, cfg RefreshLoopConfig) *RefreshLoop {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	return &RefreshLoop{
		proc:         proc,
		src:          src,
		consumer:     consumer,
		metrics:      cfg.Metrics,
		log:          cfg.Log,
		cycleTimeout: cfg.CycleTimeout,
		settings:     cfg.Settings.Normalize(),
		wakeCh:       make(chan struct{}, 1),
	}
}

func (l *RefreshLoop) Settings() RefreshSettings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

// SetSettings replaces the refresh controls and wakes the loop so the new
// settings apply immediately. It returns the stored (clamped) value.
func (l *RefreshLoop) SetSettings(s RefreshSettings) RefreshSettings {
	s = s.Normalize()
	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()

	select {
	case l.wakeCh <- struct{}{}:
	default:
	}

	l.log.Info().
		Bool("enabled", s.Enabled).
		Dur("interval", s.Interval).
		Msg("refresh settings updated")
	return s
}

// LastCycle returns the most recent cycle result, if any cycle has run.
func (l *RefreshLoop) LastCycle() (pipeline.Cycle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return pipeline.Cycle{}, false
	}
	return *l.last, true
}

// Start runs the loop in the background. It performs one cycle straight away,
// then one per interval while enabled.
func (l *RefreshLoop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.log.Warn().Msg("refresh loop already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.stop = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.loop(ctx)
	}()

	s := l.Settings()
	l.log.Info().Bool("enabled", s.Enabled).Dur("interval", s.Interval).Msg("refresh loop started")
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (l *RefreshLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.stop()
	done := l.done
	l.running = false
	l.mu.Unlock()

	<-done
	l.log.Info().Msg("refresh loop stopped")
}

func (l *RefreshLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Run blocks until ctx is cancelled, running the loop in the calling goroutine.
func (l *RefreshLoop) Run(ctx context.Context) error {
	l.Start()
	<-ctx.Done()
	l.Stop()
	return nil
}

// Trigger runs one cycle now, outside the schedule. With auto-refresh
// disabled this is the only way cycles happen.
func (l *RefreshLoop) Trigger(ctx context.Context) pipeline.Cycle {
	l.log.Debug().Msg("manual refresh triggered")
	return l.RunOnce(ctx)
}

// RunOnce executes exactly one fetch-validate-build cycle and delivers it.
func (l *RefreshLoop) RunOnce(ctx context.Context) pipeline.Cycle {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, l.cycleTimeout)
	c := l.proc.Run(cctx, l.src)
	cancel()

	l.logCycle(c)
	l.metrics.ObserveCycle(c)

	l.mu.Lock()
	last := c
	l.last = &last
	l.mu.Unlock()

	l.deliver(ctx, c)
	return c
}

func (l *RefreshLoop) loop(ctx context.Context) {
	l.RunOnce(ctx)

	for {
		s := l.Settings()

		var tick <-chan time.Time
		var timer *time.Timer
		if s.Enabled {
			timer = time.NewTimer(s.Interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-l.wakeCh:
			stopTimer(timer)
			if l.Settings().Enabled {
				l.RunOnce(ctx)
			}
		case <-tick:
			l.RunOnce(ctx)
		}
	}
}

func (l *RefreshLoop) deliver(ctx context.Context, c pipeline.Cycle) {
	if l.consumer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("panic", fmt.Sprint(r)).Msg("series consumer panicked")
		}
	}()
	l.consumer.Consume(ctx, c)
}

func (l *RefreshLoop) logCycle(c pipeline.Cycle) {
	if c.Failed() {
		l.log.Warn().Err(c.Err).Dur("took", c.Duration).Msg("refresh cycle failed, retrying next cycle")
		return
	}
	l.log.Info().
		Str("status", string(c.Status)).
		Int("fetched", c.Fetched).
		Int("valid", c.Valid).
		Int("points", len(c.Series)).
		Strs("exchanges", c.Series.Exchanges()).
		Dur("took", c.Duration).
		Msg("refresh cycle complete")
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
