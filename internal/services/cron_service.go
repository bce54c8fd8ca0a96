package services

import (
	"context"
	"sync"
	"time"

	"golang-cart-sync/internal/repositories"

	"github.com/sirupsen/logrus"
)

const sweepBatch = 100

// CronService periodically deletes carts nobody has touched within the
// retention window and pushes the empty cart to any open connection.
type CronService struct {
	ticker      *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
	cartRepo    repositories.CartRepository
	carts       *CartService
	broadcaster SnapshotBroadcaster
	retention   time.Duration
	interval    time.Duration
}

func NewCronService(
	cartRepo repositories.CartRepository,
	carts *CartService,
	broadcaster SnapshotBroadcaster,
	retention, interval time.Duration,
) *CronService {
	return &CronService{
		stopChan:    make(chan struct{}),
		cartRepo:    cartRepo,
		carts:       carts,
		broadcaster: broadcaster,
		retention:   retention,
		interval:    interval,
	}
}

func (s *CronService) Start() {
	s.ticker = time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.SweepIdleCarts(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()

	logrus.WithFields(logrus.Fields{"retention": s.retention.String(), "interval": s.interval.String()}).Info("idle cart sweeper started")
}

func (s *CronService) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
	})
}

// SweepIdleCarts deletes every cart last updated before the retention
// window and returns how many were removed. A cart updated between the
// listing and its deletion is kept.
func (s *CronService) SweepIdleCarts(ctx context.Context) int {
	before := s.carts.now().Add(-s.retention)
	removed := 0

	for {
		userIDs, err := s.cartRepo.ListIdle(ctx, before, sweepBatch)
		if err != nil {
			logrus.WithError(err).Error("listing idle carts failed")
			return removed
		}

		batch := 0
		for _, userID := range userIDs {
			snap, deleted, err := s.carts.DeleteCart(ctx, userID, before)
			if err != nil {
				logrus.WithError(err).WithField("user_id", userID).Warn("idle cart not deleted")
				return removed
			}
			if !deleted {
				logrus.WithField("user_id", userID).Debug("cart updated since listing, kept")
				continue
			}
			batch++
			s.broadcaster.BroadcastSnapshot(ctx, userID, snap)
		}
		removed += batch

		// a full batch that deleted nothing would be listed again
		if len(userIDs) < sweepBatch || batch == 0 {
			break
		}
	}

	if removed > 0 {
		logrus.WithField("count", removed).Info("idle carts deleted")
	}
	return removed
}
