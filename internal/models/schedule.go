package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus represents the status of a scheduled departure
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusDeparted  ScheduleStatus = "departed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// Schedule represents a specific bus departure: route, bus, date and times,
// price per seat and capacity. The booking flow reads schedules but never
// writes them; administration of this data lives elsewhere.
type Schedule struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Origin        string         `json:"origin" db:"origin"`
	Destination   string         `json:"destination" db:"destination"`
	BusNumber     string         `json:"bus_number" db:"bus_number"`
	TravelDate    time.Time      `json:"travel_date" db:"travel_date"`
	DepartureTime time.Time      `json:"departure_time" db:"departure_time"`
	ArrivalTime   time.Time      `json:"arrival_time" db:"arrival_time"`
	PricePerSeat  float64        `json:"price_per_seat" db:"price_per_seat"`
	Capacity      int            `json:"capacity" db:"capacity"`
	Status        ScheduleStatus `json:"status" db:"status"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// IsBookable reports whether new bookings may be taken against the schedule.
func (s *Schedule) IsBookable() bool {
	return s.Status == ScheduleStatusScheduled && s.DepartureTime.After(time.Now())
}

// SeatMapResponse is the availability view returned to the seat picker.
// It is rebuilt from inventory truth on every request; clients must not
// treat a previously fetched map as authoritative.
type SeatMapResponse struct {
	ScheduleID   uuid.UUID      `json:"schedule_id"`
	PricePerSeat float64        `json:"price_per_seat"`
	Seats        []SeatMapEntry `json:"seats"`
}

// SeatMapEntry is one seat in the availability view
type SeatMapEntry struct {
	SeatNumber string `json:"seat_number"`
	Available  bool   `json:"available"`
}
