package caldav

import "time"

// Calendar is a calendar collection found on the server
type Calendar struct {
	Path        string // collection path, used for queries and PUTs
	DisplayName string
	Description string
}

// Event is one VEVENT stored on the server
type Event struct {
	UID         string
	Path        string // object path; empty for events not yet written
	Summary     string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	AllDay      bool
}
