package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dialtel/crm-backend/internal/types"
)

// MemStore is a map-backed Store. It backs the server when DynamoDB is
// disabled and doubles as the test double for the catalog and the engine;
// FailPartition injects transient scan errors to exercise retry and
// partial-result behavior.
type MemStore struct {
	mu         sync.RWMutex
	partitions map[string][]types.RawSaleRecord
	owners     []types.PartitionOwner
	failures   map[string]int // partition -> remaining scan failures
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		partitions: make(map[string][]types.RawSaleRecord),
		failures:   make(map[string]int),
	}
}

// Put appends records to a partition, creating it if needed.
func (s *MemStore) Put(partition string, records ...types.RawSaleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[partition] = append(s.partitions[partition], records...)
}

// SetOwners replaces the ownership mapping rows.
func (s *MemStore) SetOwners(owners ...types.PartitionOwner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = owners
}

// FailPartition makes the next n scans of a partition return an error.
func (s *MemStore) FailPartition(partition string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[partition] = n
}

func (s *MemStore) ListPartitions(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemStore) ScanSales(ctx context.Context, partition string, fn func(types.RawSaleRecord) error) error {
	s.mu.Lock()
	if n := s.failures[partition]; n > 0 {
		s.failures[partition] = n - 1
		s.mu.Unlock()
		return &PartitionUnavailableError{Partition: partition}
	}
	records := make([]types.RawSaleRecord, len(s.partitions[partition]))
	copy(records, s.partitions[partition])
	s.mu.Unlock()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(record); err != nil {
			if err == ErrStopScan {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *MemStore) OwnershipMappings(_ context.Context) ([]types.PartitionOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]types.PartitionOwner, len(s.owners))
	copy(owners, s.owners)
	return owners, nil
}

// PartitionUnavailableError is the transient scan failure MemStore
// injects for tests.
type PartitionUnavailableError struct {
	Partition string
}

func (e *PartitionUnavailableError) Error() string {
	return "partition unavailable: " + e.Partition
}
