// internal/inventory/domain_test.go
package inventory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"stocktrack/internal/errs"
)

func newItem(total, available, reserved int) *Item {
	return &Item{
		Name:              "Oscilloscope",
		Category:          "equipment",
		TotalQuantity:     total,
		AvailableQuantity: available,
		ReservedQuantity:  reserved,
		Status:            StatusActive,
		IsCheckoutable:    true,
	}
}

func TestReserveMovesStock(t *testing.T) {
	item := newItem(10, 10, 0)

	require.NoError(t, item.Reserve(3))

	assert.Equal(t, 7, item.AvailableQuantity)
	assert.Equal(t, 3, item.ReservedQuantity)
	assert.Equal(t, 10, item.TotalQuantity)
}

func TestReserveInsufficientQuantity(t *testing.T) {
	item := newItem(10, 2, 8)

	err := item.Reserve(3)

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Equal(t, 2, item.AvailableQuantity, "no partial mutation on failure")
	assert.Equal(t, 8, item.ReservedQuantity)
}

func TestReserveNotCheckoutable(t *testing.T) {
	item := newItem(10, 10, 0)
	item.IsCheckoutable = false

	err := item.Reserve(1)

	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestReleaseRestoresStock(t *testing.T) {
	item := newItem(10, 7, 3)

	item.Release(3)

	assert.Equal(t, 10, item.AvailableQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)
}

func TestReleaseClampsAgainstCorruptCounts(t *testing.T) {
	// Releasing more than was ever reserved must not break the
	// partition invariants.
	item := newItem(10, 9, 1)

	item.Release(5)

	assert.Equal(t, 10, item.AvailableQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)
	assert.LessOrEqual(t, item.AvailableQuantity+item.ReservedQuantity, item.TotalQuantity)
}

func TestSetTotalQuantityShrinksPartition(t *testing.T) {
	item := newItem(10, 6, 4)

	require.NoError(t, item.SetTotalQuantity(7))

	assert.Equal(t, 7, item.TotalQuantity)
	assert.Equal(t, 3, item.AvailableQuantity)
	assert.Equal(t, 4, item.ReservedQuantity, "reserved stock backs open transactions and is kept")
}

func TestSetTotalQuantityBelowReserved(t *testing.T) {
	item := newItem(10, 6, 4)

	require.NoError(t, item.SetTotalQuantity(2))

	assert.Equal(t, 0, item.AvailableQuantity)
	assert.Equal(t, 2, item.ReservedQuantity)
}

func TestClamp(t *testing.T) {
	item := newItem(5, 9, 3)

	item.Clamp()

	assert.Equal(t, 5, item.AvailableQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)
}

func refreshed(item *Item) *Item {
	item.Refresh()
	return item
}

func TestRefreshLowStockFlag(t *testing.T) {
	assert.True(t, refreshed(newItem(100, 10, 90)).IsLowStock)
	assert.True(t, refreshed(newItem(100, 0, 100)).IsLowStock)
	assert.False(t, refreshed(newItem(100, 11, 89)).IsLowStock)
}

func TestRefreshAvailabilityFlag(t *testing.T) {
	assert.True(t, refreshed(newItem(10, 1, 9)).IsAvailable)
	assert.False(t, refreshed(newItem(10, 0, 10)).IsAvailable)

	item := newItem(10, 5, 0)
	item.Status = StatusMaintenance
	assert.False(t, refreshed(item).IsAvailable)
}

func TestDerivedFlagsSerialize(t *testing.T) {
	// Responses carry the computed flags so clients never re-derive
	// availability from the raw partition.
	data, err := json.Marshal(refreshed(newItem(100, 5, 95)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"is_available":true`)
	assert.Contains(t, string(data), `"is_low_stock":true`)
}

// TestQuantityPartitionInvariants drives a random sequence of
// reserve/release/resize operations and checks that the partition
// invariants hold after every step.
func TestQuantityPartitionInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(0, 50).Draw(t, "total")
		item := newItem(total, total, 0)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				qty := rapid.IntRange(1, 10).Draw(t, "reserve_qty")
				_ = item.Reserve(qty)
			case 1:
				qty := rapid.IntRange(0, 10).Draw(t, "release_qty")
				item.Release(qty)
			case 2:
				newTotal := rapid.IntRange(0, 50).Draw(t, "new_total")
				_ = item.SetTotalQuantity(newTotal)
			}

			if item.AvailableQuantity < 0 {
				t.Fatalf("available went negative: %d", item.AvailableQuantity)
			}
			if item.ReservedQuantity < 0 {
				t.Fatalf("reserved went negative: %d", item.ReservedQuantity)
			}
			if item.AvailableQuantity+item.ReservedQuantity > item.TotalQuantity {
				t.Fatalf("partition overflow: available=%d reserved=%d total=%d",
					item.AvailableQuantity, item.ReservedQuantity, item.TotalQuantity)
			}
			if item.AvailableQuantity > item.TotalQuantity {
				t.Fatalf("available exceeds total: %d > %d", item.AvailableQuantity, item.TotalQuantity)
			}
		}
	})
}

func TestValidate(t *testing.T) {
	item := &Item{TotalQuantity: -1}

	err := item.Validate()

	require.Error(t, err)
	fields := errs.FieldsOf(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "category")
	assert.Contains(t, fields, "total_quantity")
}
