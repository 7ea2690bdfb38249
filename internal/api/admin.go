package api

import (
	"encoding/json"
	"net/http"

	"github.com/dialtel/crm-backend/internal/catalog"
	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/scoring"
	"github.com/rs/zerolog"
)

// AdminHandler exposes operational endpoints: reloading the scoring
// table and name overrides without a restart, and inspecting the
// partition catalog.
type AdminHandler struct {
	scores        *scoring.Resolver
	names         *identity.Normalizer
	catalog       *catalog.Catalog
	scoringPath   string
	overridesPath string
	logger        zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(scores *scoring.Resolver, names *identity.Normalizer, cat *catalog.Catalog, scoringPath, overridesPath string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		scores:        scores,
		names:         names,
		catalog:       cat,
		scoringPath:   scoringPath,
		overridesPath: overridesPath,
		logger:        logger.With().Str("component", "admin_handler").Logger(),
	}
}

// ReloadScoring re-reads the scoring table from disk
// POST /api/admin/scoring/reload
func (h *AdminHandler) ReloadScoring(w http.ResponseWriter, r *http.Request) {
	if h.scoringPath == "" {
		http.Error(w, "no scoring table file configured", http.StatusConflict)
		return
	}

	if err := h.scores.LoadFile(h.scoringPath); err != nil {
		h.logger.Error().Err(err).Str("path", h.scoringPath).Msg("scoring table reload failed")
		http.Error(w, "failed to reload scoring table", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("path", h.scoringPath).Int("services", h.scores.Services()).Msg("scoring table reloaded")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "reloaded",
		"services": h.scores.Services(),
	})
}

// ReloadOverrides re-reads the name override file from disk
// POST /api/admin/identity/reload
func (h *AdminHandler) ReloadOverrides(w http.ResponseWriter, r *http.Request) {
	if h.overridesPath == "" {
		http.Error(w, "no name override file configured", http.StatusConflict)
		return
	}

	if err := h.names.LoadOverrides(h.overridesPath); err != nil {
		h.logger.Error().Err(err).Str("path", h.overridesPath).Msg("name override reload failed")
		http.Error(w, "failed to reload name overrides", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reloaded"})
}

// GetCatalog lists the discovered partitions with their resolved owners
// GET /api/admin/catalog
func (h *AdminHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	partitions, err := h.catalog.Partitions(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list partitions")
		http.Error(w, "failed to list partitions", http.StatusInternalServerError)
		return
	}

	type row struct {
		Partition string `json:"partition"`
		Owner     string `json:"owner,omitempty"`
		OwnerKey  string `json:"ownerKey,omitempty"`
	}
	rows := make([]row, 0, len(partitions))
	for _, partition := range partitions {
		entry := row{Partition: partition}
		if owner, ok := h.catalog.OwnerOf(r.Context(), partition); ok {
			entry.Owner = owner.Display
			entry.OwnerKey = owner.Key
		}
		rows = append(rows, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}
