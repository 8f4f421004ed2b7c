package dto

// AvailabilityRequest creates or replaces one calendar exception.
type AvailabilityRequest struct {
	TechnicianID string  `json:"technicianId" validate:"required"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    *string `json:"startTime" validate:"omitempty,datetime=15:04,required_with=EndTime"`
	EndTime      *string `json:"endTime" validate:"omitempty,datetime=15:04,required_with=StartTime"`
	Type         string  `json:"type" validate:"required,oneof=available vacation sick training"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

// AvailabilityListQuery filters exception listings.
type AvailabilityListQuery struct {
	DateRange
	TechnicianID string `form:"technicianId"`
	Type         string `form:"type" validate:"omitempty,oneof=available vacation sick training"`
}

// BulkAvailabilityRequest stores the same exception on every date of a range.
type BulkAvailabilityRequest struct {
	DateRange
	TechnicianID string  `json:"technicianId" validate:"required"`
	StartTime    *string `json:"startTime" validate:"omitempty,datetime=15:04,required_with=EndTime"`
	EndTime      *string `json:"endTime" validate:"omitempty,datetime=15:04,required_with=StartTime"`
	Type         string  `json:"type" validate:"required,oneof=available vacation sick training"`
	WeekdaysOnly bool    `json:"weekdaysOnly"`
	Notes        string  `json:"notes" validate:"max=2000"`
}

// AvailabilitySummary is one technician's capacity with exception counts.
type AvailabilitySummary struct {
	TechnicianID   string         `json:"technicianId"`
	TechnicianName string         `json:"technicianName"`
	AvailableHours float64        `json:"availableHours"`
	ExceptionDays  map[string]int `json:"exceptionDays"`
}
