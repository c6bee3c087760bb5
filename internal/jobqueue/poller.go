package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// PollerConfig tunes the background job poller.
type PollerConfig struct {
	Interval        time.Duration
	BatchSize       int
	CleanupInterval time.Duration
	Retention       time.Duration

	// StatsObserver, when set, receives the queue's per-status counts
	// after each tick. Used to feed the jobs gauge.
	StatsObserver func(map[domain.JobStatus]int64)
}

// Poller drains due jobs on a fixed interval and periodically prunes
// finished jobs past their retention window.
type Poller struct {
	service  *Service
	config   PollerConfig
	log      logger.Logger
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(service *Service, config PollerConfig, log logger.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &Poller{
		service:  service,
		config:   config,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the polling loop until Stop is called or ctx ends.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
	p.log.Info("job poller started",
		logger.Duration("interval", p.config.Interval),
		logger.Int("batch_size", p.config.BatchSize))
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	<-p.doneChan
	p.log.Info("job poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	// Drain whatever accumulated while the process was down before the
	// first tick fires.
	p.tick(ctx)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-cleanup.C:
			if n, err := p.service.Cleanup(ctx, p.config.Retention); err != nil {
				p.log.Error("job cleanup failed", logger.Error(err))
			} else if n > 0 {
				p.log.Info("old jobs pruned", logger.Int64("deleted", n))
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	n, err := p.service.ProcessDue(ctx, p.config.BatchSize)
	if err != nil {
		p.log.Error("job poll failed", logger.Error(err))
		return
	}
	if n > 0 {
		p.log.Debug("processed due jobs", logger.Int("count", n))
	}

	if p.config.StatsObserver != nil {
		counts, err := p.service.Stats(ctx)
		if err != nil {
			p.log.Warn("job stats refresh failed", logger.Error(err))
			return
		}
		p.config.StatsObserver(counts)
	}
}
