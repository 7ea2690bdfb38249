package scoring

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Tolerance for comparing a stored score against a freshly computed one.
// Covers floating-point representation error, not logical drift.
const tolerance = 0.01

//go:embed scoring_table.json
var defaultTable []byte

// Entry is the point configuration for one service. Either Base is set
// (flat value regardless of risk) or ByRisk maps risk levels to values.
type Entry struct {
	Base   *float64           `json:"base,omitempty"`
	ByRisk map[string]float64 `json:"byRisk,omitempty"`
}

// Resolver looks up the point value of a (service, risk) pair. The table
// is loaded once at startup and only replaced on an explicit Reload; the
// aggregation path treats it as read-only. The same table must back every
// component that computes scores, otherwise the stored puntaje and the
// ranking recomputation drift apart.
type Resolver struct {
	mu     sync.RWMutex
	table  map[string]Entry
	logger zerolog.Logger

	unknownServices map[string]bool // services seen but absent from the table
}

// NewResolver builds a Resolver from the embedded default table.
func NewResolver(logger zerolog.Logger) (*Resolver, error) {
	r := &Resolver{
		logger:          logger.With().Str("component", "scoring").Logger(),
		unknownServices: make(map[string]bool),
	}
	table, err := parseTable(defaultTable)
	if err != nil {
		return nil, fmt.Errorf("embedded scoring table is invalid: %w", err)
	}
	r.table = table
	return r, nil
}

// LoadFile replaces the table with the contents of a JSON file. Used both
// at startup (when SCORING_TABLE_PATH is set) and by the reload endpoint.
func (r *Resolver) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scoring table: %w", err)
	}
	table, err := parseTable(data)
	if err != nil {
		return fmt.Errorf("failed to parse scoring table %s: %w", path, err)
	}

	r.mu.Lock()
	r.table = table
	r.unknownServices = make(map[string]bool)
	r.mu.Unlock()

	r.logger.Info().Str("path", path).Int("services", len(table)).Msg("scoring table loaded")
	return nil
}

func parseTable(data []byte) (map[string]Entry, error) {
	var table map[string]Entry
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	for key, entry := range table {
		if entry.Base == nil && len(entry.ByRisk) == 0 {
			return nil, fmt.Errorf("service %q has neither base nor byRisk", key)
		}
	}
	return table, nil
}

// NormalizeRisk folds the free-text risk level into the table's keys.
func NormalizeRisk(risk string) string {
	risk = strings.ToLower(strings.TrimSpace(risk))
	switch risk {
	case "", "n/a", "na", "not-applicable", "no aplica":
		return "na"
	default:
		return risk
	}
}

// Resolve returns the point value for a service and risk level. Unknown
// services resolve to 0 and are logged once as a table gap; a risk level
// missing from a risk-keyed entry falls back to the entry's low value.
func (r *Resolver) Resolve(serviceKey, riskLevel string) float64 {
	if serviceKey == "" {
		return 0
	}

	r.mu.RLock()
	entry, ok := r.table[serviceKey]
	r.mu.RUnlock()

	if !ok {
		r.noteUnknown(serviceKey)
		return 0
	}

	if entry.Base != nil {
		return *entry.Base
	}

	risk := NormalizeRisk(riskLevel)
	if v, ok := entry.ByRisk[risk]; ok {
		return v
	}
	if v, ok := entry.ByRisk["low"]; ok {
		r.logger.Debug().
			Str("service", serviceKey).
			Str("risk", risk).
			Msg("risk level not in table, falling back to low")
		return v
	}
	return 0
}

// Validate reports whether a stored score matches the current table for
// the given service and risk, within floating-point tolerance. Used to
// detect stale precomputed scores written before a table change.
func (r *Resolver) Validate(points float64, serviceKey, riskLevel string) bool {
	return math.Abs(points-r.Resolve(serviceKey, riskLevel)) < tolerance
}

// Known reports whether the service exists in the table.
func (r *Resolver) Known(serviceKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.table[serviceKey]
	return ok
}

// Services returns the number of services in the table.
func (r *Resolver) Services() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

// noteUnknown logs each missing service once per table load, so a data
// feed full of one bad key does not flood the log.
func (r *Resolver) noteUnknown(serviceKey string) {
	r.mu.Lock()
	seen := r.unknownServices[serviceKey]
	r.unknownServices[serviceKey] = true
	r.mu.Unlock()

	if !seen {
		r.logger.Warn().Str("service", serviceKey).Msg("service missing from scoring table, resolving to 0")
	}
}
