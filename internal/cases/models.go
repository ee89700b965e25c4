package cases

import (
	"time"

	"ndsregistry/internal/domain"
)

// Case is a tracked administrative matter opened against exactly one
// identity. Cases are never deleted; lifecycle is soft, via status. The
// mirror thread reference is set at most once and immutable thereafter.
type Case struct {
	ID              int64           `json:"id"`
	IdentityID      int64           `json:"identity_id"`
	Type            domain.CaseType `json:"case_type"`
	Platform        domain.Platform `json:"platform"`
	Reason          string          `json:"reason"`
	Status          domain.Status   `json:"status"`
	MirrorThreadRef string          `json:"mirror_thread_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Linked reports whether a mirror thread has been attached.
func (c *Case) Linked() bool { return c.MirrorThreadRef != "" }

// Details pairs a case with its owner's external identifier for read paths.
type Details struct {
	Case
	Identifier string `json:"identifier"`
}

// UpdateRequest is a partial update. Raw strings are validated against the
// closed enumerations before any field is applied; empty fields are ignored;
// zero effective fields is a NoOp failure.
type UpdateRequest struct {
	Reason     string
	CaseType   string
	Platform   string
	LogMessage string
	Author     string
}

// Filter narrows case listings. Zero values mean "any".
type Filter struct {
	IdentityID int64
	Status     domain.Status
	CaseType   domain.CaseType
	Platform   domain.Platform
	Limit      int
}

// Bucket is one aggregate row for the dashboard.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TrendPoint is one day of case creation volume.
type TrendPoint struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Stats aggregates the registry for dashboards.
type Stats struct {
	Total      int          `json:"total"`
	Open       int          `json:"open"`
	Closed     int          `json:"closed"`
	Archived   int          `json:"archived"`
	ByType     []Bucket     `json:"by_type"`
	ByPlatform []Bucket     `json:"by_platform"`
	Trend      []TrendPoint `json:"trend"`
}
