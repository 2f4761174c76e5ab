package services

import (
	"fmt"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	bookingRepo   database.BookingRepository
	auditRepo     *database.PaymentAuditRepository
	retentionDays int
	logger        *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(
	bookingRepo database.BookingRepository,
	auditRepo *database.PaymentAuditRepository,
	retentionDays int,
	logger *logrus.Logger,
) *CronService {
	return &CronService{
		cron:          cron.New(cron.WithSeconds()),
		bookingRepo:   bookingRepo,
		auditRepo:     auditRepo,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	// Cron format: second minute hour day month weekday
	// "0 0 3 * * *" = At 3:00 AM every day
	_, err := s.cron.AddFunc("0 0 3 * * *", s.purgeOldRecordsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule purge job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("retention_days", s.retentionDays).Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// purgeOldRecordsJob deletes terminal bookings and audit rows past retention
func (s *CronService) purgeOldRecordsJob() {
	startTime := time.Now()
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	purgedBookings, err := s.bookingRepo.PurgeTerminalBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge old bookings")
		return
	}

	purgedAudits, err := s.auditRepo.PurgeBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to purge old payment audits")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"bookings": purgedBookings,
		"audits":   purgedAudits,
		"duration": time.Since(startTime).String(),
	}).Info("Purged records past retention")
}
