package models

import (
	"time"
)

type RecordStatus string

const (
	StatusActive  RecordStatus = "active"
	StatusExpired RecordStatus = "expired"
)

// Origin records which extraction path produced a posting.
type Origin string

const (
	OriginAPI    Origin = "api"
	OriginJSONLD Origin = "jsonld"
	OriginDOM    Origin = "dom"
	OriginText   Origin = "text"
)

// RawPosting is whatever the extractor could pull off one page.
type RawPosting struct {
	Title               string     `json:"title"`
	Company             string     `json:"company"`
	Location            string     `json:"location,omitempty"`
	Description         string     `json:"description"`
	Requirements        []string   `json:"requirements,omitempty"`
	Responsibilities    []string   `json:"responsibilities,omitempty"`
	Benefits            []string   `json:"benefits,omitempty"`
	Skills              []string   `json:"skills,omitempty"`
	ContactEmail        string     `json:"contact_email,omitempty"`
	ContactPhone        string     `json:"contact_phone,omitempty"`
	ApplicationDeadline *time.Time `json:"application_deadline,omitempty"`
	PostedDate          *time.Time `json:"posted_date,omitempty"`
	SourceURL           string     `json:"source_url"`
	ExternalID          string     `json:"external_id,omitempty"`
	Origin              Origin     `json:"origin,omitempty"`
}

// ValidatedPosting passed every content check. Treat it as immutable.
type ValidatedPosting struct {
	RawPosting
	ContentHash string `json:"content_hash"`
}

// Clone returns a deep copy so slices are not shared.
func (v ValidatedPosting) Clone() ValidatedPosting {
	out := v
	out.Requirements = append([]string(nil), v.Requirements...)
	out.Responsibilities = append([]string(nil), v.Responsibilities...)
	out.Benefits = append([]string(nil), v.Benefits...)
	out.Skills = append([]string(nil), v.Skills...)
	if v.ApplicationDeadline != nil {
		d := *v.ApplicationDeadline
		out.ApplicationDeadline = &d
	}
	if v.PostedDate != nil {
		d := *v.PostedDate
		out.PostedDate = &d
	}
	return out
}

// StoredJobRecord is a posting as persisted by the store.
type StoredJobRecord struct {
	ValidatedPosting
	ID             string       `json:"id"`
	Status         RecordStatus `json:"status"`
	ExternalSource string       `json:"external_source"`
	FirstSeenAt    time.Time    `json:"first_seen_at"`
	LastSeenAt     time.Time    `json:"last_seen_at"`
}

// SessionState is the authenticated browser session of one portal.
type SessionState struct {
	Authenticated bool      `json:"authenticated"`
	Cookies       []Cookie  `json:"cookies,omitempty"`
	LastLoginAt   time.Time `json:"last_login_at"`
}

// Cookie is a browser cookie in the shape browsers export them.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// CycleState tracks the hourly harvest quota and path rotation.
type CycleState struct {
	CurrentPathIndex        int       `json:"current_path_index"`
	ItemsHarvestedThisCycle int       `json:"items_harvested_this_cycle"`
	CycleStartHour          time.Time `json:"cycle_start_hour"`
}
