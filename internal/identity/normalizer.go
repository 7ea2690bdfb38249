package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Agent names arrive from the record store in every spelling the forms
// ever allowed: "Alejandramelara", "alejandra melara", "ALEJANDRA MELARA".
// The Normalizer collapses them to one grouping key so the same person is
// one row in the ranking. There is no authoritative identity registry; the
// key is recomputed from the raw name on every pass.
type Normalizer struct {
	logger zerolog.Logger

	// overrides maps the compact key of a known-bad spelling to the
	// corrected display name. Applied before normalization so operators
	// can fix misclassified agents without a code change. The reload
	// endpoint replaces the table while aggregations read it, hence the
	// lock.
	mu        sync.RWMutex
	overrides map[string]string
}

// NewNormalizer creates a Normalizer with no overrides.
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger:    logger.With().Str("component", "identity").Logger(),
		overrides: make(map[string]string),
	}
}

// LoadOverrides reads a curated spelling-correction table from a JSON file
// of the form {"wrong spelling": "Corrected Name", ...}. A missing file is
// not an error; the override table is optional operator input.
func (n *Normalizer) LoadOverrides(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			n.logger.Info().Str("path", path).Msg("no name override table, continuing without")
			return nil
		}
		return fmt.Errorf("failed to read name overrides: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse name overrides: %w", err)
	}

	overrides := make(map[string]string, len(raw))
	for wrong, corrected := range raw {
		overrides[compactKey(wrong)] = corrected
	}

	n.mu.Lock()
	n.overrides = overrides
	n.mu.Unlock()

	n.logger.Info().Int("entries", len(overrides)).Msg("name override table loaded")
	return nil
}

// AddOverride registers a single spelling correction.
func (n *Normalizer) AddOverride(wrong, corrected string) {
	n.mu.Lock()
	n.overrides[compactKey(wrong)] = corrected
	n.mu.Unlock()
}

// Key returns the canonical grouping key for a raw display name: override
// table applied first, then trim, strip diacritics, drop everything that
// is not a letter or digit, lowercase. Empty input yields an empty key.
func (n *Normalizer) Key(raw string) string {
	key := compactKey(raw)
	n.mu.RLock()
	corrected, ok := n.overrides[key]
	n.mu.RUnlock()
	if ok {
		return compactKey(corrected)
	}
	return key
}

// Display returns the display name for a raw value, honoring the override
// table. Without an override the trimmed raw form is returned unchanged;
// callers keep the first form they encounter per key.
func (n *Normalizer) Display(raw string) string {
	n.mu.RLock()
	corrected, ok := n.overrides[compactKey(raw)]
	n.mu.RUnlock()
	if ok {
		return corrected
	}
	return strings.TrimSpace(raw)
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// compactKey is the raw normalization transform: NFKD decomposition,
// combining marks removed, non-alphanumerics dropped, lowercased.
func compactKey(s string) string {
	folded, _, err := transform.String(stripMarks, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NameKey is a looser normal form that keeps word boundaries: diacritics
// stripped, lowercased, interior whitespace collapsed to single spaces.
// Team definitions are stored in this form.
func NameKey(s string) string {
	folded, _, err := transform.String(stripMarks, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
