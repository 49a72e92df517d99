package portal

import "time"

type Profile struct {
	DisplayName string
	Upcoming    []UpcomingItem
}

// UpcomingItem is read best-effort from the dashboard, every field except Name
// may be empty. Zero Start/End mean the time could not be read.
type UpcomingItem struct {
	ExternalID string
	Name       string
	Start      time.Time
	End        time.Time
	// Metadata keeps whatever else the markup carried (subtitle, location,
	// the raw time text and data-* attributes).
	Metadata map[string]string
}

// RawRow is one subject row of the attendance report.
type RawRow struct {
	Subject string
	Present int
	Total   int
	Percent float64
	// PercentObserved is false when the percent cell was not numeric and
	// Percent was derived from Present and Total.
	PercentObserved bool
}
