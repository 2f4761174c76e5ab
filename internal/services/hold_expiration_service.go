package services

import (
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/sirupsen/logrus"
)

// HoldExpirationService is the background reaper for TTL-lapsed seat holds.
// Expiry is still evaluated lazily on every read; the reaper only exists so
// seats of abandoned sessions return to the pool without waiting for traffic.
type HoldExpirationService struct {
	bookingRepo   database.BookingRepository
	seatInventory database.SeatInventory
	logger        *logrus.Logger
	stopCh        chan struct{}
	interval      time.Duration
}

// NewHoldExpirationService creates a new hold expiration service
func NewHoldExpirationService(
	bookingRepo database.BookingRepository,
	seatInventory database.SeatInventory,
	interval time.Duration,
	logger *logrus.Logger,
) *HoldExpirationService {
	return &HoldExpirationService{
		bookingRepo:   bookingRepo,
		seatInventory: seatInventory,
		logger:        logger,
		stopCh:        make(chan struct{}),
		interval:      interval,
	}
}

// Start begins the background reaper
func (s *HoldExpirationService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting hold expiration service")
	go s.run()
}

// Stop stops the background reaper
func (s *HoldExpirationService) Stop() {
	s.logger.Info("Stopping hold expiration service")
	close(s.stopCh)
}

func (s *HoldExpirationService) run() {
	// Run immediately on start
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.logger.Info("Hold expiration service stopped")
			return
		}
	}
}

// sweep expires stale bookings and frees their seats
func (s *HoldExpirationService) sweep() {
	expired, err := s.bookingRepo.ExpireStaleBookings()
	if err != nil {
		s.logger.WithError(err).Error("Failed to expire stale bookings")
	} else if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired stale bookings")
	}

	released, err := s.seatInventory.ReleaseExpiredHolds()
	if err != nil {
		s.logger.WithError(err).Error("Failed to release expired seat holds")
	} else if released > 0 {
		s.logger.WithField("count", released).Info("Released expired seat holds")
	}
}

// RunOnce runs a single sweep (useful for testing or manual trigger)
func (s *HoldExpirationService) RunOnce() {
	s.sweep()
}
