package tender

import (
	"time"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/values"
)

// Tender is a public-procurement notice. Once awarded it is immutable; the
// risk engine only ever reads it.
type Tender struct {
	ID             uuid.UUID    `json:"id"`
	InstitutionID  uuid.UUID    `json:"institution_id"`
	Title          string       `json:"title"`
	CPVCode        string       `json:"cpv_code"`
	EstimatedValue values.Money `json:"estimated_value"`
	AwardedValue   values.Money `json:"awarded_value"`
	Procedure      Procedure    `json:"procedure"`
	Status         Status       `json:"status"`

	PublishedAt time.Time  `json:"published_at"`
	ClosesAt    time.Time  `json:"closes_at"`
	AwardedAt   *time.Time `json:"awarded_at,omitempty"`
}

// SubmissionWindowDays is the number of days bidders had to prepare an offer.
func (t *Tender) SubmissionWindowDays() float64 {
	if t.ClosesAt.IsZero() || t.PublishedAt.IsZero() || t.ClosesAt.Before(t.PublishedAt) {
		return 0
	}
	return t.ClosesAt.Sub(t.PublishedAt).Hours() / 24
}

// SegmentKey returns the market-segment key for baseline lookups.
func (t *Tender) SegmentKey(prefixLen int) string {
	return values.SegmentKey(t.CPVCode, prefixLen)
}

type Procedure int

const (
	ProcedureOpen Procedure = iota
	ProcedureRestricted
	ProcedureNegotiatedPublished
	ProcedureNegotiatedUnpublished
	ProcedureDirectAward
)

func (p Procedure) String() string {
	switch p {
	case ProcedureOpen:
		return "open"
	case ProcedureRestricted:
		return "restricted"
	case ProcedureNegotiatedPublished:
		return "negotiated_published"
	case ProcedureNegotiatedUnpublished:
		return "negotiated_unpublished"
	case ProcedureDirectAward:
		return "direct_award"
	default:
		return "unknown"
	}
}

// IsCompetitive reports whether the procedure allows open competition.
func (p Procedure) IsCompetitive() bool {
	return p == ProcedureOpen || p == ProcedureRestricted || p == ProcedureNegotiatedPublished
}

// ParseProcedure maps a stored procedure label to its enum value.
func ParseProcedure(s string) Procedure {
	switch s {
	case "open":
		return ProcedureOpen
	case "restricted":
		return ProcedureRestricted
	case "negotiated_published":
		return ProcedureNegotiatedPublished
	case "negotiated_unpublished":
		return ProcedureNegotiatedUnpublished
	case "direct_award":
		return ProcedureDirectAward
	default:
		return ProcedureOpen
	}
}

type Status int

const (
	StatusPublished Status = iota
	StatusClosed
	StatusAwarded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPublished:
		return "published"
	case StatusClosed:
		return "closed"
	case StatusAwarded:
		return "awarded"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus maps a stored status label to its enum value.
func ParseStatus(s string) Status {
	switch s {
	case "published":
		return StatusPublished
	case "closed":
		return StatusClosed
	case "awarded":
		return StatusAwarded
	case "cancelled":
		return StatusCancelled
	default:
		return StatusPublished
	}
}
