package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/busmate/booking-backend/internal/database"
	"github.com/busmate/booking-backend/internal/models"
	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
)

// TicketService produces the e-ticket artifacts for confirmed bookings: the
// QR payload embedded in the confirmation response and a printable PDF.
type TicketService struct {
	scheduleRepo database.ScheduleRepository
	logger       *logrus.Logger
}

// NewTicketService creates a new ticket service
func NewTicketService(scheduleRepo database.ScheduleRepository, logger *logrus.Logger) *TicketService {
	return &TicketService{
		scheduleRepo: scheduleRepo,
		logger:       logger,
	}
}

// BuildTicket returns the structured ticket for a booking
func (s *TicketService) BuildTicket(booking *models.Booking) (*models.TicketPayload, error) {
	return s.buildPayload(booking)
}

// BuildQRPayload renders the boarding QR content for a booking. The payload
// is self-contained JSON so gate scanners can verify offline.
func (s *TicketService) BuildQRPayload(booking *models.Booking) (string, error) {
	payload, err := s.buildPayload(booking)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ticket payload: %w", err)
	}
	return string(data), nil
}

func (s *TicketService) buildPayload(booking *models.Booking) (*models.TicketPayload, error) {
	schedule, err := s.scheduleRepo.GetScheduleByID(booking.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for ticket: %w", err)
	}

	paymentRef := ""
	if booking.PaymentRef != nil {
		paymentRef = *booking.PaymentRef
	}

	return &models.TicketPayload{
		BookingID:        booking.ID.String(),
		Reference:        booking.Reference(),
		Status:           string(booking.Status),
		PassengerName:    booking.PassengerName,
		PassengerEmail:   booking.PassengerEmail,
		Origin:           schedule.Origin,
		Destination:      schedule.Destination,
		Route:            fmt.Sprintf("%s - %s", schedule.Origin, schedule.Destination),
		TravelDate:       schedule.TravelDate.Format("2006-01-02"),
		DepartureTime:    schedule.DepartureTime.Format("15:04"),
		ArrivalTime:      schedule.ArrivalTime.Format("15:04"),
		BusNumber:        schedule.BusNumber,
		Seats:            booking.SeatNumbers,
		SeatCount:        len(booking.SeatNumbers),
		Amount:           fmt.Sprintf("%.2f %s", booking.Amount, booking.Currency),
		PaymentRef:       paymentRef,
		VerificationCode: verificationCode(booking),
	}, nil
}

// GeneratePDF renders a printable e-ticket for a confirmed booking
func (s *TicketService) GeneratePDF(booking *models.Booking) ([]byte, error) {
	if booking.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("ticket available only for confirmed bookings")
	}

	payload, err := s.buildPayload(booking)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "BusMate E-Ticket")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Booking Reference: %s", payload.Reference))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("Passenger: %s", payload.PassengerName),
		fmt.Sprintf("Route: %s", payload.Route),
		fmt.Sprintf("Travel Date: %s", payload.TravelDate),
		fmt.Sprintf("Departure: %s    Arrival: %s", payload.DepartureTime, payload.ArrivalTime),
		fmt.Sprintf("Bus: %s", payload.BusNumber),
		fmt.Sprintf("Seats: %s", strings.Join(payload.Seats, ", ")),
		fmt.Sprintf("Amount Paid: %s", payload.Amount),
		fmt.Sprintf("Verification Code: %s", payload.VerificationCode),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, "Present this ticket and a valid ID at boarding.")
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Issued %s", time.Now().Format("2006-01-02 15:04")))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket pdf: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"bytes":      buf.Len(),
	}).Info("Generated e-ticket PDF")

	return buf.Bytes(), nil
}

// verificationCode derives a short code gate staff can read out loud.
// Stable for a booking so reprints match the original ticket.
func verificationCode(booking *models.Booking) string {
	seed := booking.ID.String()
	if booking.PaymentRef != nil {
		seed += *booking.PaymentRef
	}
	sum := sha256.Sum256([]byte(seed))
	return strings.ToUpper(hex.EncodeToString(sum[:4]))
}
