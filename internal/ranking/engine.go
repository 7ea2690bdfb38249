package ranking

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dialtel/crm-backend/internal/cache"
	"github.com/dialtel/crm-backend/internal/catalog"
	"github.com/dialtel/crm-backend/internal/dates"
	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/metrics"
	"github.com/dialtel/crm-backend/internal/scoring"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStoreUnavailable is returned when not a single partition could be
// scanned. Anything short of that produces a partial result instead.
var ErrStoreUnavailable = errors.New("no partition could be scanned")

// Config tunes one aggregation pass.
type Config struct {
	// Concurrency caps simultaneous in-flight partition scans.
	Concurrency int
	// Deadline bounds the whole pass; partitions still unscanned when it
	// expires are skipped and the result is marked partial.
	Deadline time.Duration
	// RetryBackoff is the pause before the single retry of a failed
	// partition scan.
	RetryBackoff time.Duration
}

// Engine aggregates sale records from many partitions into a ranked list
// of agents and teams. Partition scans fan out to a bounded worker pool;
// a single collector owns the cross-partition dedup set and the
// per-identity accumulators, so no shared state is mutated concurrently.
type Engine struct {
	store   storage.Store
	catalog *catalog.Catalog
	scores  *scoring.Resolver
	names   *identity.Normalizer
	teams   *identity.Teams
	cache   *cache.RankingCache
	logger  zerolog.Logger
	cfg     Config
}

// NewEngine wires an Engine.
func NewEngine(store storage.Store, cat *catalog.Catalog, scores *scoring.Resolver, names *identity.Normalizer, teams *identity.Teams, rc *cache.RankingCache, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Engine{
		store:   store,
		catalog: cat,
		scores:  scores,
		names:   names,
		teams:   teams,
		cache:   rc,
		logger:  logger.With().Str("component", "ranking").Logger(),
		cfg:     cfg,
	}
}

// Aggregate answers a ranking query, serving from the cache when it can.
func (e *Engine) Aggregate(ctx context.Context, query types.RankingQuery) (*types.RankingResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	identityKey := ""
	if query.Scope == types.ScopeSingle {
		identityKey = e.names.Key(query.IdentityHint)
	}

	key := cache.Key(query.Range, query.Scope, identityKey)
	result, hit, err := e.cache.GetOrCompute(ctx, key, query.Fresh, func(ctx context.Context) (*types.RankingResult, error) {
		return e.compute(ctx, query, identityKey)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		e.logger.Debug().Str("key", key).Msg("ranking served from cache")
	}
	return result, nil
}

// scanned is one partition's worth of filtered, resolved records. Records
// are buffered per partition so that a retried scan never double-feeds
// the collector.
type scanned struct {
	partition string
	records   []types.SaleRecord
	err       error
}

func (e *Engine) compute(ctx context.Context, query types.RankingQuery, identityKey string) (*types.RankingResult, error) {
	m := metrics.Get()
	started := time.Now()
	trace := uuid.NewString()[:8]

	if e.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Deadline)
		defer cancel()
	}

	partitions, err := e.catalog.PartitionsFor(ctx, query.Scope, identityKey)
	if err != nil {
		m.RecordAggregationError()
		return nil, err
	}

	e.logger.Info().
		Str("trace", trace).
		Str("range", query.Range.String()).
		Str("scope", string(query.Scope)).
		Int("partitions", len(partitions)).
		Msg("aggregation started")

	results := make(chan scanned, len(partitions))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, partition := range partitions {
		wg.Add(1)
		go func(partition string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			records, err := e.scanWithRetry(ctx, partition, query.Range)
			results <- scanned{partition: partition, records: records, err: err}
		}(partition)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector: the dedup set and the accumulators have exactly
	// one writer, so partition scan order cannot affect totals beyond
	// which physical copy of a duplicate is the one that counts.
	acc := newAccumulator(e, trace)
	var skipped []string

	for batch := range results {
		if batch.err != nil {
			e.logger.Warn().
				Str("trace", trace).
				Str("partition", batch.partition).
				Err(batch.err).
				Msg("partition skipped")
			m.RecordPartitionSkipped()
			skipped = append(skipped, batch.partition)
			continue
		}
		m.RecordPartitionScanned(len(batch.records))
		for _, rec := range batch.records {
			acc.add(rec)
		}
	}

	if len(partitions) > 0 && len(skipped) == len(partitions) {
		m.RecordAggregationError()
		return nil, ErrStoreUnavailable
	}

	sort.Strings(skipped)
	result := acc.finalize(query, skipped)
	m.RecordAggregation(time.Since(started), result.Partial)

	e.logger.Info().
		Str("trace", trace).
		Int("agents", result.TotalAgents).
		Int("sales", result.TotalSales).
		Bool("partial", result.Partial).
		Dur("took", time.Since(started)).
		Msg("aggregation finished")

	return result, nil
}

// scanWithRetry scans one partition, retrying once after a backoff on
// transient failure. Records are filtered down to the queried date range
// here, in the worker, so the collector only sees relevant ones.
func (e *Engine) scanWithRetry(ctx context.Context, partition string, r dates.Range) ([]types.SaleRecord, error) {
	records, err := e.scanPartition(ctx, partition, r)
	if err == nil {
		return records, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	e.logger.Warn().
		Str("partition", partition).
		Err(err).
		Msg("partition scan failed, retrying")

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(e.cfg.RetryBackoff):
	}
	return e.scanPartition(ctx, partition, r)
}

func (e *Engine) scanPartition(ctx context.Context, partition string, r dates.Range) ([]types.SaleRecord, error) {
	m := metrics.Get()
	var records []types.SaleRecord

	err := e.store.ScanSales(ctx, partition, func(raw types.RawSaleRecord) error {
		rec := raw.Resolve()
		if rec.Excluded {
			return nil
		}
		if !rec.SaleDateOK {
			m.RecordUnparseableDate()
			e.logger.Debug().
				Str("partition", partition).
				Str("agent", rec.AgentDisplayName).
				Msg("record dropped, unparseable sale date")
			return nil
		}
		if !r.Contains(rec.SaleDate) {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
