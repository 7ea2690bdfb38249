package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

const (
	// ownerSampleLimit caps how many records are read when inferring a
	// partition's owner from its contents.
	ownerSampleLimit = 200

	// ownerDominanceShare is the minimum share of sampled records that
	// must name the same agent for ownership to be inferred.
	ownerDominanceShare = 0.6
)

// Owner is the resolved owning identity of a partition.
type Owner struct {
	Key     string // canonical identity key
	Display string // raw display name
}

// Catalog discovers sale partitions and resolves which agent owns each
// one. Ownership is a routing hint for single-agent queries; a partition
// with unknown ownership is still scanned in all-scope queries and its
// records count toward whichever identities they name.
//
// Discovery results are cached briefly: partition sets change when an
// agent joins, queries arrive every page view.
type Catalog struct {
	store  storage.Store
	names  *identity.Normalizer
	logger zerolog.Logger

	prefix  string
	primary string
	ttl     time.Duration

	mu         sync.RWMutex
	partitions []string
	owners     map[string]Owner // partition -> owner (explicit or inferred)
	fetchedAt  time.Time
}

// New creates a Catalog. primary is the shared partition name (scanned in
// every scope); prefix selects which store partitions are sale partitions.
func New(store storage.Store, names *identity.Normalizer, prefix, primary string, ttl time.Duration, logger zerolog.Logger) *Catalog {
	return &Catalog{
		store:   store,
		names:   names,
		logger:  logger.With().Str("component", "catalog").Logger(),
		prefix:  prefix,
		primary: primary,
		ttl:     ttl,
		owners:  make(map[string]Owner),
	}
}

// Primary returns the shared primary partition name.
func (c *Catalog) Primary() string { return c.primary }

// Partitions returns all discovered sale partitions, refreshing the
// cached set when it has expired.
func (c *Catalog) Partitions(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl && c.partitions != nil
	cached := c.partitions
	c.mu.RUnlock()

	if fresh {
		return cached, nil
	}
	return c.refresh(ctx)
}

// PartitionsFor resolves the partitions a query scope covers. ScopeAll is
// every discovered partition; ScopeSingle is the primary partition plus
// every partition owned by the identity.
func (c *Catalog) PartitionsFor(ctx context.Context, scope types.Scope, identityKey string) ([]string, error) {
	all, err := c.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	if scope == types.ScopeAll {
		return all, nil
	}

	targets := []string{}
	seenPrimary := false
	for _, partition := range all {
		if partition == c.primary {
			targets = append(targets, partition)
			seenPrimary = true
			continue
		}
		if owner, ok := c.OwnerOf(ctx, partition); ok && owner.Key == identityKey {
			targets = append(targets, partition)
		}
	}
	if !seenPrimary {
		// The primary partition is scanned even when discovery missed it
		// (e.g. it does not share the agent-partition prefix).
		targets = append([]string{c.primary}, targets...)
	}
	return targets, nil
}

// OwnerOf resolves the owning identity of a partition: the explicit
// ownership mapping first, inference from the partition's own records
// second. The primary partition never has an owner.
func (c *Catalog) OwnerOf(ctx context.Context, partition string) (Owner, bool) {
	if partition == c.primary {
		return Owner{}, false
	}

	c.mu.RLock()
	owner, ok := c.owners[partition]
	c.mu.RUnlock()
	if ok {
		return owner, owner.Key != ""
	}

	owner, err := c.inferOwner(ctx, partition)
	if err != nil {
		// A failed inference scan says nothing about ownership; leave the
		// partition uncached so the next query retries instead of waiting
		// out the refresh interval.
		c.logger.Warn().Err(err).Str("partition", partition).Msg("owner inference scan failed")
		return Owner{}, false
	}

	c.mu.Lock()
	c.owners[partition] = owner
	c.mu.Unlock()

	return owner, owner.Key != ""
}

// refresh re-discovers partitions and reloads the explicit ownership
// mapping, dropping stale inferred owners.
func (c *Catalog) refresh(ctx context.Context) ([]string, error) {
	partitions, err := c.store.ListPartitions(ctx, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("partition discovery failed: %w", err)
	}

	owners := make(map[string]Owner, len(partitions))
	mappings, err := c.store.OwnershipMappings(ctx)
	if err != nil {
		// The mapping table being unreachable only degrades single-agent
		// routing; discovery itself succeeded.
		c.logger.Warn().Err(err).Msg("ownership mappings unavailable, relying on inference")
	} else {
		for _, m := range mappings {
			display := m.OwnerName
			if display == "" {
				display = m.OwnerID
			}
			owners[m.PartitionName] = Owner{Key: c.names.Key(display), Display: display}
		}
	}

	c.mu.Lock()
	c.partitions = partitions
	c.owners = owners
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug().
		Int("partitions", len(partitions)).
		Int("explicit_owners", len(owners)).
		Msg("partition catalog refreshed")

	return partitions, nil
}

// inferOwner samples a partition's records and claims ownership for the
// dominant agent identity, if any identity clearly dominates.
func (c *Catalog) inferOwner(ctx context.Context, partition string) (Owner, error) {
	counts := make(map[string]int)
	displays := make(map[string]string)
	sampled := 0

	err := c.store.ScanSales(ctx, partition, func(raw types.RawSaleRecord) error {
		rec := raw.Resolve()
		if rec.AgentDisplayName != "" {
			key := c.names.Key(rec.AgentDisplayName)
			counts[key]++
			if _, ok := displays[key]; !ok {
				displays[key] = c.names.Display(rec.AgentDisplayName)
			}
		}
		sampled++
		if sampled >= ownerSampleLimit {
			return storage.ErrStopScan
		}
		return nil
	})
	if err != nil {
		return Owner{}, err
	}
	if sampled == 0 {
		return Owner{}, nil
	}

	bestKey, bestCount := "", 0
	for key, count := range counts {
		if count > bestCount {
			bestKey, bestCount = key, count
		}
	}
	if bestKey == "" || float64(bestCount) < ownerDominanceShare*float64(sampled) {
		c.logger.Debug().Str("partition", partition).Msg("no dominant identity, owner unknown")
		return Owner{}, nil
	}

	c.logger.Debug().
		Str("partition", partition).
		Str("owner", displays[bestKey]).
		Int("sampled", sampled).
		Msg("partition owner inferred")

	return Owner{Key: bestKey, Display: displays[bestKey]}, nil
}

// Run refreshes the catalog periodically until ctx is cancelled.
func (c *Catalog) Run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.ttl).Msg("catalog refresh loop started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("catalog refresh loop stopped")
			return
		case <-ticker.C:
			if _, err := c.refresh(ctx); err != nil {
				c.logger.Error().Err(err).Msg("catalog refresh failed")
			}
		}
	}
}
