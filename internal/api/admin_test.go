package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dialtel/crm-backend/internal/catalog"
	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/scoring"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

func TestReloadScoring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.json")
	if err := os.WriteFile(path, []byte(`{"only-service": {"base": 2.0}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	scores, err := scoring.NewResolver(logger)
	if err != nil {
		t.Fatal(err)
	}
	handler := NewAdminHandler(scores, identity.NewNormalizer(logger), nil, path, "", logger)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/scoring/reload", nil)
	rec := httptest.NewRecorder()
	handler.ReloadScoring(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var response map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response["services"] != float64(1) {
		t.Errorf("services = %v, want 1", response["services"])
	}
	if got := scores.Resolve("only-service", ""); got != 2.0 {
		t.Errorf("table not actually reloaded: %v", got)
	}
}

func TestReloadScoringNoPathConfigured(t *testing.T) {
	logger := zerolog.Nop()
	scores, _ := scoring.NewResolver(logger)
	handler := NewAdminHandler(scores, identity.NewNormalizer(logger), nil, "", "", logger)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/scoring/reload", nil)
	rec := httptest.NewRecorder()
	handler.ReloadScoring(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetCatalog(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{AgentName: "A"})
	store.Put(primary+"-josue", types.RawSaleRecord{AgentName: "Josue Renderos"})
	store.SetOwners(types.PartitionOwner{PartitionName: primary + "-josue", OwnerID: "u1", OwnerName: "Josue Renderos"})

	logger := zerolog.Nop()
	names := identity.NewNormalizer(logger)
	cat := catalog.New(store, names, primary, primary, time.Minute, logger)
	scores, _ := scoring.NewResolver(logger)
	handler := NewAdminHandler(scores, names, cat, "", "", logger)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/catalog", nil)
	rec := httptest.NewRecorder()
	handler.GetCatalog(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var rows []struct {
		Partition string `json:"partition"`
		Owner     string `json:"owner"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	byName := map[string]string{}
	for _, r := range rows {
		byName[r.Partition] = r.Owner
	}
	if byName[primary] != "" {
		t.Errorf("primary partition has owner %q", byName[primary])
	}
	if byName[primary+"-josue"] != "Josue Renderos" {
		t.Errorf("owner = %q", byName[primary+"-josue"])
	}
}
