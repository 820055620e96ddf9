package model

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by repositories for a missing row in the tenant.
var ErrNotFound = errors.New("not found")

var ErrCalendarTaken = errors.New("calendar already linked to another tenant")

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "No Show"
)

// ParseStatus accepts the canonical labels case-insensitively, plus the
// hyphen/underscore spellings of No Show.
func ParseStatus(raw string) (Status, bool) {
	norm := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	switch norm {
	case "scheduled":
		return StatusScheduled, true
	case "completed":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	case "no show", "noshow":
		return StatusNoShow, true
	default:
		return "", false
	}
}

// Finalized statuses are never flagged for review.
func (s Status) Finalized() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Sticky statuses are outcomes recorded locally that an external change never overrides.
func (s Status) Sticky() bool {
	return s == StatusCompleted || s == StatusNoShow
}

type Appointment struct {
	ID              string
	TenantID        string
	DogID           *string
	GroomerID       *string
	ScheduledAt     time.Time
	Services        string
	Notes           string
	Status          Status
	ExternalEventID string
	DetailsNeeded   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SameContent reports whether every synchronized field matches.
func (a Appointment) SameContent(b Appointment) bool {
	return eqID(a.DogID, b.DogID) &&
		eqID(a.GroomerID, b.GroomerID) &&
		a.ScheduledAt.Equal(b.ScheduledAt) &&
		a.Services == b.Services &&
		a.Notes == b.Notes &&
		a.Status == b.Status &&
		a.ExternalEventID == b.ExternalEventID &&
		a.DetailsNeeded == b.DetailsNeeded
}

func eqID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to a copy of id, or nil for "".
func Ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// Deref returns the id behind p, or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
