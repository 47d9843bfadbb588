// Package scheduler runs the periodic maintenance jobs: warming the
// client-credentials tokens used by the fetchers and sweeping abandoned
// OAuth flows.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepInterval is how often expired pending flows are dropped.
const SweepInterval = time.Minute

// TokenWarmer is an app token source that can be refreshed ahead of use.
type TokenWarmer interface {
	Name() string
	Validate() error
	Token(ctx context.Context) (string, error)
}

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	warmers []TokenWarmer
	sweeper Sweeper
	spec    string
}

// New creates a Scheduler that warms tokens every warmInterval. sweeper may
// be nil when pending flows live in Redis.
func New(warmInterval time.Duration, sweeper Sweeper, warmers ...TokenWarmer) (*Scheduler, error) {
	if warmInterval <= 0 {
		return nil, fmt.Errorf("token warm interval must be positive, got %v", warmInterval)
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		warmers: warmers,
		sweeper: sweeper,
		spec:    "@every " + warmInterval.String(),
	}, nil
}

// Start registers the jobs and starts the scheduler. Tokens are also warmed
// once immediately so the first requests do not pay for the grant.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.WarmTokens(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%s): %w", s.spec, err)
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc("@every "+SweepInterval.String(), func() { s.SweepPending() }); err != nil {
			return fmt.Errorf("cron.AddFunc(sweep): %w", err)
		}
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started, token warm spec: %s", s.spec)

	go s.WarmTokens(ctx)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] Cron stopped")
}

// WarmTokens fetches every configured app token. Sources without
// credentials are skipped. It returns the number of tokens warmed.
func (s *Scheduler) WarmTokens(ctx context.Context) int {
	warmed := 0
	for _, w := range s.warmers {
		if err := w.Validate(); err != nil {
			continue
		}
		if _, err := w.Token(ctx); err != nil {
			log.Printf("[scheduler] %s token warm failed: %v", w.Name(), err)
			continue
		}
		warmed++
	}
	return warmed
}

// SweepPending drops expired OAuth flows.
func (s *Scheduler) SweepPending() int {
	if s.sweeper == nil {
		return 0
	}
	n := s.sweeper.Sweep()
	if n > 0 {
		log.Printf("[scheduler] Swept %d expired OAuth flow(s)", n)
	}
	return n
}
