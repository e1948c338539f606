// Package sweeper expires overdue activities on a timer. It goes through the
// same service transition path as admin callers, never a storage shortcut.
package sweeper

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/engage/internal/domain"
	"example.com/engage/internal/observability"
)

// Sweeper periodically transitions overdue active activities to expired.
type Sweeper struct {
	service          *domain.Service
	interval         time.Duration
	shutdownComplete chan struct{}
}

// New constructs a Sweeper.
func New(service *domain.Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:          service,
		interval:         interval,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the sweep loop. It should be called in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		expired, err := s.service.ExpireOverdue(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("expiry sweep error: %v", err)
		}
		if len(expired) > 0 {
			log.Printf("expiry sweep closed %d activities", len(expired))
		}
		observability.RecordSweep(time.Now().UTC())
	}
}

// Wait blocks until the sweeper stops.
func (s *Sweeper) Wait() {
	<-s.shutdownComplete
}
