package storage

import (
	"context"
	"errors"

	"github.com/dialtel/crm-backend/internal/types"
)

// ErrStopScan can be returned by a scan callback to stop the scan early
// without the scan itself reporting an error. Used for sampling.
var ErrStopScan = errors.New("stop scan")

// Store is the record-store boundary the ranking engine depends on.
// Partitions are name-addressable and independently scannable; the engine
// assumes nothing else about the underlying technology.
type Store interface {
	// ListPartitions returns the names of all sale partitions whose name
	// starts with the given prefix.
	ListPartitions(ctx context.Context, prefix string) ([]string, error)

	// ScanSales streams every record in a partition through fn. A fn
	// error aborts the scan and is returned, except ErrStopScan which
	// stops the scan and returns nil.
	ScanSales(ctx context.Context, partition string, fn func(types.RawSaleRecord) error) error

	// OwnershipMappings returns the explicit partition-ownership rows.
	OwnershipMappings(ctx context.Context) ([]types.PartitionOwner, error)
}
