package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/dialtel/crm-backend/internal/metrics"
	"github.com/dialtel/crm-backend/internal/types"
)

// agentAcc carries one agent's running totals while partitions stream in.
type agentAcc struct {
	display  string // first raw spelling seen wins
	team     string
	points   float64
	sales    int
	cancels  int
	rawForms map[string]struct{}
}

type teamAcc struct {
	points  float64
	sales   int
	cancels int
}

// accumulator folds deduplicated records into per-agent and per-team
// totals. It is only ever touched from the collector goroutine.
type accumulator struct {
	e     *Engine
	trace string

	seen   map[string]struct{} // natural keys already counted
	agents map[string]*agentAcc
	teams  map[string]*teamAcc
}

func newAccumulator(e *Engine, trace string) *accumulator {
	return &accumulator{
		e:      e,
		trace:  trace,
		seen:   make(map[string]struct{}),
		agents: make(map[string]*agentAcc),
		teams:  make(map[string]*teamAcc),
	}
}

func (a *accumulator) add(rec types.SaleRecord) {
	m := metrics.Get()

	// Cancelled sales join the dedup set too: the same physical sale must
	// count at most once no matter which partition's copy arrives first or
	// whether one copy carries a cancelled status.
	if key := rec.NaturalKey(); key != "" {
		if _, dup := a.seen[key]; dup {
			m.RecordDuplicate()
			return
		}
		a.seen[key] = struct{}{}
	}

	if rec.AgentDisplayName == "" {
		return
	}

	idKey := a.e.names.Key(rec.AgentDisplayName)
	acc, ok := a.agents[idKey]
	if !ok {
		acc = &agentAcc{
			display:  a.e.names.Display(rec.AgentDisplayName),
			rawForms: make(map[string]struct{}),
		}
		a.agents[idKey] = acc
	}
	if _, known := acc.rawForms[rec.AgentDisplayName]; !known {
		acc.rawForms[rec.AgentDisplayName] = struct{}{}
		if len(acc.rawForms) == 2 {
			m.RecordIdentityCollision()
			a.e.logger.Debug().
				Str("trace", a.trace).
				Str("identity", idKey).
				Str("display", acc.display).
				Str("variant", rec.AgentDisplayName).
				Msg("identity spelling variant merged")
		}
	}

	if acc.team == "" {
		acc.team = a.teamFor(rec)
	}
	var tacc *teamAcc
	if acc.team != "" {
		tacc, ok = a.teams[acc.team]
		if !ok {
			tacc = &teamAcc{}
			a.teams[acc.team] = tacc
		}
	}

	if rec.IsCancelled() {
		acc.cancels++
		if tacc != nil {
			tacc.cancels++
		}
		return
	}

	points := a.points(rec)
	acc.points += points
	acc.sales++
	if tacc != nil {
		tacc.points += points
		tacc.sales++
	}
}

// teamFor resolves a record's team: the record's own label first, then
// the roster lookup by agent, then the supervisor. An unknown supervisor
// name is still a usable team label.
func (a *accumulator) teamFor(rec types.SaleRecord) string {
	if rec.TeamName != "" {
		return a.e.teams.DisplayNameOf(rec.TeamName)
	}
	if team := a.e.teams.TeamOf(rec.AgentDisplayName); team != "" {
		return team
	}
	if rec.SupervisorDisplayName != "" {
		if team := a.e.teams.TeamOfSupervisor(rec.SupervisorDisplayName); team != "" {
			return team
		}
		return rec.SupervisorDisplayName
	}
	return ""
}

// points returns the record's score. A stored value that still matches
// the current table is trusted; a stale or absent one is recomputed from
// service and risk.
func (a *accumulator) points(rec types.SaleRecord) float64 {
	m := metrics.Get()

	if rec.ServiceKey != "" && !a.e.scores.Known(rec.ServiceKey) {
		m.RecordUnknownService()
	}
	if rec.PrecomputedPoints != nil {
		if a.e.scores.Validate(*rec.PrecomputedPoints, rec.ServiceKey, rec.RiskLevel) {
			return *rec.PrecomputedPoints
		}
		m.RecordStaleScore()
		a.e.logger.Debug().
			Str("trace", a.trace).
			Str("service", rec.ServiceKey).
			Float64("stored", *rec.PrecomputedPoints).
			Msg("stored points stale, recomputing")
	}
	return a.e.scores.Resolve(rec.ServiceKey, rec.RiskLevel)
}

func (a *accumulator) finalize(query types.RankingQuery, skipped []string) *types.RankingResult {
	entries := make([]types.RankingEntry, 0, len(a.agents))
	totalSales := 0
	for idKey, acc := range a.agents {
		entries = append(entries, types.RankingEntry{
			Identity:    idKey,
			DisplayName: acc.display,
			TotalPoints: round1(acc.points),
			SaleCount:   acc.sales,
			CancelCount: acc.cancels,
			TeamName:    acc.team,
		})
		totalSales += acc.sales
	}

	// Points decide rank; sale count breaks point ties, the display name
	// breaks the rest so the order is stable across runs.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		if entries[i].SaleCount != entries[j].SaleCount {
			return entries[i].SaleCount > entries[j].SaleCount
		}
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	teams := make([]types.TeamEntry, 0, len(a.teams))
	for name, acc := range a.teams {
		teams = append(teams, types.TeamEntry{
			TeamName:    name,
			TotalPoints: round1(acc.points),
			SaleCount:   acc.sales,
			CancelCount: acc.cancels,
		})
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].TotalPoints != teams[j].TotalPoints {
			return teams[i].TotalPoints > teams[j].TotalPoints
		}
		if teams[i].SaleCount != teams[j].SaleCount {
			return teams[i].SaleCount > teams[j].SaleCount
		}
		return strings.ToLower(teams[i].TeamName) < strings.ToLower(teams[j].TeamName)
	})
	for i := range teams {
		teams[i].Rank = i + 1
	}

	return &types.RankingResult{
		GeneratedAt:       time.Now().UTC(),
		Range:             query.Range.String(),
		Scope:             query.Scope,
		Entries:           entries,
		Teams:             teams,
		TotalAgents:       len(entries),
		TotalSales:        totalSales,
		Partial:           len(skipped) > 0,
		SkippedPartitions: skipped,
	}
}
