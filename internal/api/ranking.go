package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dialtel/crm-backend/internal/dates"
	"github.com/dialtel/crm-backend/internal/ranking"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

// RankingHandler provides REST endpoints for the sales ranking
type RankingHandler struct {
	engine *ranking.Engine
	logger zerolog.Logger
}

// NewRankingHandler creates a new RankingHandler
func NewRankingHandler(engine *ranking.Engine, logger zerolog.Logger) *RankingHandler {
	return &RankingHandler{
		engine: engine,
		logger: logger.With().Str("component", "ranking_handler").Logger(),
	}
}

// GetRanking returns the agent ranking for a date range
// GET /api/ranking?start=YYYY-MM-DD&end=YYYY-MM-DD&scope=all|single&agent=NAME&fresh=true&limit=N
func (h *RankingHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	query, limit, err := parseRankingQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.Aggregate(r.Context(), query)
	if err != nil {
		h.writeAggregateError(w, err)
		return
	}

	if limit > 0 && limit < len(result.Entries) {
		trimmed := *result
		trimmed.Entries = result.Entries[:limit]
		result = &trimmed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetTeamRanking returns the team roll-up for a date range
// GET /api/ranking/teams?start=YYYY-MM-DD&end=YYYY-MM-DD&fresh=true
func (h *RankingHandler) GetTeamRanking(w http.ResponseWriter, r *http.Request) {
	query, _, err := parseRankingQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Team roll-ups only make sense over the full partition set.
	query.Scope = types.ScopeAll
	query.IdentityHint = ""

	result, err := h.engine.Aggregate(r.Context(), query)
	if err != nil {
		h.writeAggregateError(w, err)
		return
	}

	response := struct {
		GeneratedAt string            `json:"generatedAt"`
		Range       string            `json:"range"`
		Teams       []types.TeamEntry `json:"teams"`
		Partial     bool              `json:"partial"`
	}{
		GeneratedAt: result.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		Range:       result.Range,
		Teams:       result.Teams,
		Partial:     result.Partial,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *RankingHandler) writeAggregateError(w http.ResponseWriter, err error) {
	var invalid *types.InvalidQueryError
	if errors.As(err, &invalid) {
		http.Error(w, invalid.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, ranking.ErrStoreUnavailable) {
		h.logger.Error().Err(err).Msg("ranking unavailable, no partition reachable")
		http.Error(w, "ranking temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Error().Err(err).Msg("failed to compute ranking")
	http.Error(w, "failed to compute ranking", http.StatusInternalServerError)
}

// parseRankingQuery builds a RankingQuery from query parameters. The
// default window is the current month to date; the default scope is all
// partitions.
func parseRankingQuery(r *http.Request) (types.RankingQuery, int, error) {
	q := r.URL.Query()

	today := dates.Today()
	rng := dates.Range{Start: today.FirstOfMonth(), End: today}

	if raw := q.Get("start"); raw != "" {
		d, ok := dates.Normalize(raw)
		if !ok {
			return types.RankingQuery{}, 0, fmt.Errorf("start: not a valid date: %q", raw)
		}
		rng.Start = d
	}
	if raw := q.Get("end"); raw != "" {
		d, ok := dates.Normalize(raw)
		if !ok {
			return types.RankingQuery{}, 0, fmt.Errorf("end: not a valid date: %q", raw)
		}
		rng.End = d
	}

	scope := types.ScopeAll
	if raw := q.Get("scope"); raw != "" {
		scope = types.Scope(raw)
	}

	// The dashboard sends fresh=1, older clients fresh=true.
	fresh := q.Get("fresh") == "true" || q.Get("fresh") == "1"

	query := types.RankingQuery{
		Range:        rng,
		Scope:        scope,
		IdentityHint: q.Get("agent"),
		Fresh:        fresh,
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return types.RankingQuery{}, 0, fmt.Errorf("limit: must be a positive integer, got %q", raw)
		}
		limit = n
	}

	return query, limit, nil
}
