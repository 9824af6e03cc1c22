package models

type DailyBookingCount struct {
	Day   string `bun:"day" json:"day"`
	Count int    `bun:"count" json:"count"`
}

type EventBookingStats struct {
	EventID       string              `json:"eventId"`
	Title         string              `json:"title"`
	TotalSlots    int                 `json:"totalSlots"`
	Booked        int                 `json:"booked"`
	Remaining     int                 `json:"remaining"`
	FillRate      float64             `json:"fillRate"`
	BookingsByDay []DailyBookingCount `json:"bookingsByDay"`
}
