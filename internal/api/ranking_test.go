package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dialtel/crm-backend/internal/cache"
	"github.com/dialtel/crm-backend/internal/catalog"
	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/ranking"
	"github.com/dialtel/crm-backend/internal/scoring"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

const primary = "crm-sales"

func newTestHandler(t *testing.T, store *storage.MemStore) *RankingHandler {
	t.Helper()
	logger := zerolog.Nop()

	names := identity.NewNormalizer(logger)
	teams := identity.NewTeams()
	scores, err := scoring.NewResolver(logger)
	if err != nil {
		t.Fatalf("scoring.NewResolver: %v", err)
	}
	cat := catalog.New(store, names, primary, primary, time.Minute, logger)
	rc := cache.NewRankingCache(time.Minute, logger)
	engine := ranking.NewEngine(store, cat, scores, names, teams, rc, ranking.Config{
		Concurrency:  2,
		RetryBackoff: time.Millisecond,
	}, logger)

	return NewRankingHandler(engine, logger)
}

func seedStore() *storage.MemStore {
	store := storage.NewMemStore()
	store.Put(primary,
		types.RawSaleRecord{AgentName: "Josue Renderos", Account: "AC-1", Services: "att-1g-plus", SaleDay: "2025-10-05"},
		types.RawSaleRecord{AgentName: "Tatiana Ayala", Account: "AC-2", Services: "att-air", SaleDay: "2025-10-06"},
	)
	return store
}

func TestGetRanking(t *testing.T) {
	handler := newTestHandler(t, seedStore())

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?start=2025-10-01&end=2025-10-31", nil)
	rec := httptest.NewRecorder()
	handler.GetRanking(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var result types.RankingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.TotalAgents != 2 {
		t.Errorf("TotalAgents = %d, want 2", result.TotalAgents)
	}
	if result.Entries[0].DisplayName != "Josue Renderos" {
		t.Errorf("top entry = %q", result.Entries[0].DisplayName)
	}
	if result.Entries[0].Rank != 1 {
		t.Errorf("top rank = %d", result.Entries[0].Rank)
	}
}

func TestGetRankingLimit(t *testing.T) {
	handler := newTestHandler(t, seedStore())

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?start=2025-10-01&end=2025-10-31&limit=1", nil)
	rec := httptest.NewRecorder()
	handler.GetRanking(rec, req)

	var result types.RankingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 1 {
		t.Errorf("limit ignored, got %d entries", len(result.Entries))
	}
	// Totals describe the full ranking, not the trimmed page.
	if result.TotalAgents != 2 {
		t.Errorf("TotalAgents = %d, want 2", result.TotalAgents)
	}
}

func TestGetRankingBadParams(t *testing.T) {
	handler := newTestHandler(t, seedStore())

	tests := []struct {
		name  string
		query string
	}{
		{"bad start", "?start=notadate"},
		{"bad end", "?start=2025-10-01&end=octubre"},
		{"inverted range", "?start=2025-10-31&end=2025-10-01"},
		{"unknown scope", "?scope=galaxy"},
		{"single without agent", "?scope=single"},
		{"bad limit", "?limit=-3"},
		{"non-numeric limit", "?limit=ten"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ranking"+tt.query, nil)
			rec := httptest.NewRecorder()
			handler.GetRanking(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %q)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestParseRankingQueryFresh(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"fresh=true", true},
		{"fresh=1", true},
		{"fresh=0", false},
		{"fresh=false", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/ranking?"+tt.raw, nil)
		query, _, err := parseRankingQuery(req)
		if err != nil {
			t.Fatalf("parseRankingQuery(%q): %v", tt.raw, err)
		}
		if query.Fresh != tt.want {
			t.Errorf("Fresh with %q = %v, want %v", tt.raw, query.Fresh, tt.want)
		}
	}
}

func TestGetRankingDefaultsToMonthToDate(t *testing.T) {
	store := storage.NewMemStore()
	today := time.Now()
	store.Put(primary, types.RawSaleRecord{
		AgentName: "Josue Renderos",
		Account:   "AC-1",
		Services:  "att-air",
		SaleDay:   today.Format("2006-01-02"),
	})
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	rec := httptest.NewRecorder()
	handler.GetRanking(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result types.RankingResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.TotalAgents != 1 {
		t.Errorf("a sale from today missed the default window: %+v", result)
	}
}

func TestGetRankingUnavailable(t *testing.T) {
	store := seedStore()
	store.FailPartition(primary, 2)
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?start=2025-10-01&end=2025-10-31", nil)
	rec := httptest.NewRecorder()
	handler.GetRanking(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetTeamRanking(t *testing.T) {
	handler := newTestHandler(t, seedStore())

	req := httptest.NewRequest(http.MethodGet, "/api/ranking/teams?start=2025-10-01&end=2025-10-31", nil)
	rec := httptest.NewRecorder()
	handler.GetTeamRanking(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var response struct {
		Teams   []types.TeamEntry `json:"teams"`
		Partial bool              `json:"partial"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	// Both seeded agents are on TEAM IRANIA.
	if len(response.Teams) != 1 || response.Teams[0].TeamName != "TEAM IRANIA" {
		t.Errorf("teams = %+v", response.Teams)
	}
	if response.Teams[0].SaleCount != 2 {
		t.Errorf("team SaleCount = %d, want 2", response.Teams[0].SaleCount)
	}
}

func TestGetRankingPartialFlagExposed(t *testing.T) {
	store := seedStore()
	store.Put(primary+"-broken", types.RawSaleRecord{AgentName: "X", Account: "AC-9", Services: "att-air", SaleDay: "2025-10-07"})
	store.FailPartition(primary+"-broken", 2)
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?start=2025-10-01&end=2025-10-31", nil)
	rec := httptest.NewRecorder()
	handler.GetRanking(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result types.RankingResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if !result.Partial {
		t.Error("partial flag not exposed to the client")
	}
	if len(result.SkippedPartitions) != 1 {
		t.Errorf("SkippedPartitions = %v", result.SkippedPartitions)
	}
}
