package tender

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/values"
)

// Bid is one offer submitted against a tender.
type Bid struct {
	ID           uuid.UUID    `json:"id"`
	TenderID     uuid.UUID    `json:"tender_id"`
	BidderID     uuid.UUID    `json:"bidder_id"`
	Amount       values.Money `json:"amount"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	Rank         int          `json:"rank"`
	Disqualified bool         `json:"disqualified"`
}

// AmendmentKind classifies a post-award contract modification.
type AmendmentKind string

const (
	AmendmentValueChange       AmendmentKind = "value_change"
	AmendmentDeadlineExtension AmendmentKind = "deadline_extension"
	AmendmentScopeChange       AmendmentKind = "scope_change"
)

// Amendment is a post-award modification to an awarded contract.
type Amendment struct {
	ID         uuid.UUID     `json:"id"`
	TenderID   uuid.UUID     `json:"tender_id"`
	Kind       AmendmentKind `json:"kind"`
	OldValue   values.Money  `json:"old_value"`
	NewValue   values.Money  `json:"new_value"`
	ModifiedAt time.Time     `json:"modified_at"`
}

// Snapshot is the immutable per-evaluation view of one tender: the tender
// record plus its bids and amendments, read once at calculation time. Every
// indicator result must be derivable from a Snapshot and the market baseline
// alone.
type Snapshot struct {
	Tender     *Tender
	Bids       []Bid
	Amendments []Amendment
}

// ActiveBids returns the bids still in contention, excluding disqualified ones.
func (s *Snapshot) ActiveBids() []Bid {
	active := make([]Bid, 0, len(s.Bids))
	for _, b := range s.Bids {
		if !b.Disqualified {
			active = append(active, b)
		}
	}
	return active
}

// BidderCount returns the number of distinct non-disqualified bidders.
func (s *Snapshot) BidderCount() int {
	seen := make(map[uuid.UUID]struct{})
	for _, b := range s.ActiveBids() {
		seen[b.BidderID] = struct{}{}
	}
	return len(seen)
}

// BidderSet returns the distinct non-disqualified bidder identifiers.
func (s *Snapshot) BidderSet() map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{})
	for _, b := range s.ActiveBids() {
		set[b.BidderID] = struct{}{}
	}
	return set
}

// WinningBid returns the rank-1 active bid, falling back to the lowest amount
// when ranks were not recorded. Returns nil when there are no active bids.
func (s *Snapshot) WinningBid() *Bid {
	active := s.ActiveBids()
	if len(active) == 0 {
		return nil
	}
	for i := range active {
		if active[i].Rank == 1 {
			return &active[i]
		}
	}
	lowest := &active[0]
	for i := range active {
		if active[i].Amount.Amount().LessThan(lowest.Amount.Amount()) {
			lowest = &active[i]
		}
	}
	return lowest
}

// AmountsAscending returns the active bid amounts sorted low to high.
func (s *Snapshot) AmountsAscending() []float64 {
	active := s.ActiveBids()
	amounts := make([]float64, 0, len(active))
	for _, b := range active {
		amounts = append(amounts, b.Amount.Float64())
	}
	sort.Float64s(amounts)
	return amounts
}

// DisqualifiedCount returns the number of disqualified bids.
func (s *Snapshot) DisqualifiedCount() int {
	n := 0
	for _, b := range s.Bids {
		if b.Disqualified {
			n++
		}
	}
	return n
}
