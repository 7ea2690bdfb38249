package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/dialtel/crm-backend/internal/identity"
	"github.com/dialtel/crm-backend/internal/storage"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
)

const primary = "crm-sales"

func newTestCatalog(store storage.Store) *Catalog {
	names := identity.NewNormalizer(zerolog.Nop())
	return New(store, names, primary, primary, time.Minute, zerolog.Nop())
}

func TestPartitionsDiscovery(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{AgentName: "A"})
	store.Put(primary+"-josue", types.RawSaleRecord{AgentName: "Josue Renderos"})
	store.Put("unrelated-table", types.RawSaleRecord{AgentName: "B"})

	c := newTestCatalog(store)
	partitions, err := c.Partitions(context.Background())
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}

	want := []string{primary, primary + "-josue"}
	if len(partitions) != len(want) {
		t.Fatalf("partitions = %v, want %v", partitions, want)
	}
	for i := range want {
		if partitions[i] != want[i] {
			t.Errorf("partitions[%d] = %q, want %q", i, partitions[i], want[i])
		}
	}
}

func TestPartitionsForScopeAll(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	store.Put(primary+"-a", types.RawSaleRecord{})
	store.Put(primary+"-b", types.RawSaleRecord{})

	c := newTestCatalog(store)
	partitions, err := c.PartitionsFor(context.Background(), types.ScopeAll, "")
	if err != nil {
		t.Fatalf("PartitionsFor: %v", err)
	}
	if len(partitions) != 3 {
		t.Errorf("scope all returned %d partitions, want 3", len(partitions))
	}
}

func TestPartitionsForScopeSingleExplicitOwner(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	store.Put(primary+"-josue", types.RawSaleRecord{})
	store.Put(primary+"-tatiana", types.RawSaleRecord{})
	store.SetOwners(
		types.PartitionOwner{PartitionName: primary + "-josue", OwnerID: "u1", OwnerName: "Josue Renderos"},
		types.PartitionOwner{PartitionName: primary + "-tatiana", OwnerID: "u2", OwnerName: "Tatiana Ayala"},
	)

	c := newTestCatalog(store)
	partitions, err := c.PartitionsFor(context.Background(), types.ScopeSingle, "josuerenderos")
	if err != nil {
		t.Fatalf("PartitionsFor: %v", err)
	}

	want := map[string]bool{primary: true, primary + "-josue": true}
	if len(partitions) != 2 {
		t.Fatalf("partitions = %v, want primary plus owned", partitions)
	}
	for _, p := range partitions {
		if !want[p] {
			t.Errorf("unexpected partition %q", p)
		}
	}
}

func TestOwnerInferenceFromRecords(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	// No explicit mapping; 9 of 10 records name the same agent.
	records := make([]types.RawSaleRecord, 0, 10)
	for i := 0; i < 9; i++ {
		records = append(records, types.RawSaleRecord{AgentName: "Josue Renderos"})
	}
	records = append(records, types.RawSaleRecord{AgentName: "Someone Else"})
	store.Put(primary+"-mystery", records...)

	c := newTestCatalog(store)
	owner, ok := c.OwnerOf(context.Background(), primary+"-mystery")
	if !ok {
		t.Fatal("expected an inferred owner")
	}
	if owner.Key != "josuerenderos" {
		t.Errorf("owner key = %q, want josuerenderos", owner.Key)
	}
	if owner.Display != "Josue Renderos" {
		t.Errorf("owner display = %q", owner.Display)
	}
}

func TestOwnerInferenceNoDominantIdentity(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	// An even split: nobody reaches the dominance threshold.
	store.Put(primary+"-shared",
		types.RawSaleRecord{AgentName: "Agent One"},
		types.RawSaleRecord{AgentName: "Agent Two"},
	)

	c := newTestCatalog(store)
	if _, ok := c.OwnerOf(context.Background(), primary+"-shared"); ok {
		t.Error("owner inferred without a dominant identity")
	}
}

func TestOwnerInferenceScanFailureNotCached(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	store.Put(primary+"-josue",
		types.RawSaleRecord{AgentName: "Josue Renderos"},
		types.RawSaleRecord{AgentName: "Josue Renderos"},
	)
	store.FailPartition(primary+"-josue", 1)

	c := newTestCatalog(store)
	if _, ok := c.OwnerOf(context.Background(), primary+"-josue"); ok {
		t.Fatal("owner resolved while the inference scan was failing")
	}

	// The failure must not stick as "unowned": the next lookup scans
	// again and finds the owner.
	owner, ok := c.OwnerOf(context.Background(), primary+"-josue")
	if !ok {
		t.Fatal("owner not re-inferred after a transient scan failure")
	}
	if owner.Key != "josuerenderos" {
		t.Errorf("owner key = %q, want josuerenderos", owner.Key)
	}
}

func TestOwnerOfPrimaryAlwaysUnowned(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{AgentName: "Josue Renderos"})

	c := newTestCatalog(store)
	if _, ok := c.OwnerOf(context.Background(), primary); ok {
		t.Error("primary partition reported an owner")
	}
}

func TestOwnerOfEmptyPartition(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})
	store.Put(primary+"-empty")

	c := newTestCatalog(store)
	if _, ok := c.OwnerOf(context.Background(), primary+"-empty"); ok {
		t.Error("empty partition reported an owner")
	}
}

func TestPartitionsCached(t *testing.T) {
	store := storage.NewMemStore()
	store.Put(primary, types.RawSaleRecord{})

	c := newTestCatalog(store)
	if _, err := c.Partitions(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A partition appearing inside the TTL is not seen yet.
	store.Put(primary+"-new", types.RawSaleRecord{})
	partitions, err := c.Partitions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(partitions) != 1 {
		t.Errorf("cached partition set grew mid-TTL: %v", partitions)
	}

	// An explicit refresh picks it up.
	if _, err := c.refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	partitions, _ = c.Partitions(context.Background())
	if len(partitions) != 2 {
		t.Errorf("refresh missed the new partition: %v", partitions)
	}
}
