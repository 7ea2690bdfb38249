package types

import (
	"fmt"
	"time"

	"github.com/dialtel/crm-backend/internal/dates"
)

// Scope selects which partitions an aggregation covers.
type Scope string

const (
	// ScopeAll scans every discovered sale partition.
	ScopeAll Scope = "all"
	// ScopeSingle scans the primary partition plus the partitions owned
	// by one agent.
	ScopeSingle Scope = "single"
)

// RankingQuery is the inbound aggregation request.
type RankingQuery struct {
	Range dates.Range
	Scope Scope

	// IdentityHint is the raw agent name for ScopeSingle queries.
	IdentityHint string

	// Fresh bypasses the ranking cache. The freshly computed result still
	// replaces the cached entry.
	Fresh bool
}

// Validate rejects malformed queries before any partition is touched.
// The returned error names the offending field so the HTTP layer can
// produce a precise client error.
func (q RankingQuery) Validate() error {
	if err := q.Range.Validate(); err != nil {
		return &InvalidQueryError{Field: "range", Reason: err.Error()}
	}
	switch q.Scope {
	case ScopeAll:
	case ScopeSingle:
		if q.IdentityHint == "" {
			return &InvalidQueryError{Field: "agent", Reason: "scope=single requires an agent"}
		}
	default:
		return &InvalidQueryError{Field: "scope", Reason: fmt.Sprintf("unknown scope %q", q.Scope)}
	}
	return nil
}

// InvalidQueryError marks a query the caller got wrong; the HTTP layer
// maps it to a 400 with the field name.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query field %s: %s", e.Field, e.Reason)
}

// RankingEntry is one agent's row in the final ranking.
type RankingEntry struct {
	Identity    string  `json:"identity"`    // canonical grouping key
	DisplayName string  `json:"displayName"` // first raw form seen for the key
	TotalPoints float64 `json:"totalPoints"`
	SaleCount   int     `json:"saleCount"`
	CancelCount int     `json:"cancelCount"`
	Rank        int     `json:"rank"`
	TeamName    string  `json:"teamName,omitempty"`
}

// TeamEntry is one team's roll-up row.
type TeamEntry struct {
	TeamName    string  `json:"teamName"`
	TotalPoints float64 `json:"totalPoints"`
	SaleCount   int     `json:"saleCount"`
	CancelCount int     `json:"cancelCount"`
	Rank        int     `json:"rank"`
}

// RankingResult is an ordered ranking for one (range, scope) query.
type RankingResult struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Range       string         `json:"range"`
	Scope       Scope          `json:"scope"`
	Entries     []RankingEntry `json:"entries"`
	Teams       []TeamEntry    `json:"teams"`

	TotalAgents int `json:"totalAgents"`
	TotalSales  int `json:"totalSales"` // counted sales across all entries, cancels excluded

	// Partial is set when one or more partitions could not be scanned
	// (unreachable after retry, or the overall deadline expired). The
	// result is still usable; the caller decides whether to show it.
	Partial           bool     `json:"partial"`
	SkippedPartitions []string `json:"skippedPartitions,omitempty"`
}

// PartitionOwner is an explicit ownership mapping row linking a physical
// partition to the agent whose sales it holds.
type PartitionOwner struct {
	PartitionName string `dynamodbav:"collectionName" json:"collectionName"`
	OwnerID       string `dynamodbav:"ownerId" json:"ownerId"`
	OwnerName     string `dynamodbav:"ownerName,omitempty" json:"ownerName,omitempty"`
}
