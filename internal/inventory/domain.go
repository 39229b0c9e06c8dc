// internal/inventory/domain.go
package inventory

import (
	"time"

	"github.com/google/uuid"

	"stocktrack/internal/errs"
)

// Item statuses.
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusMaintenance = "maintenance"
	StatusRetired     = "retired"
	StatusLost        = "lost"
)

// ValidStatus reports whether s is a known item status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance, StatusRetired, StatusLost:
		return true
	}
	return false
}

// Location describes where an item is stored.
type Location struct {
	Building string `json:"building,omitempty"`
	Floor    string `json:"floor,omitempty"`
	Room     string `json:"room,omitempty"`
	Shelf    string `json:"shelf,omitempty"`
	Position string `json:"position,omitempty"`
}

// Item is a trackable inventory record with a quantity partition.
//
// The partition invariants hold at all times:
//
//	available_quantity + reserved_quantity <= total_quantity
//	available_quantity <= total_quantity
//
// Quantities are mutated only by the checkout, return and approval
// engines, through the atomic store operations in this package.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`

	SKU     string `json:"sku,omitempty"`
	Barcode string `json:"barcode,omitempty"`
	QRCode  string `json:"qr_code,omitempty"`

	TotalQuantity     int `json:"total_quantity"`
	AvailableQuantity int `json:"available_quantity"`
	ReservedQuantity  int `json:"reserved_quantity"`

	Unit     string   `json:"unit"`
	Cost     float64  `json:"cost,omitempty"`
	Value    float64  `json:"value,omitempty"`
	Location Location `json:"location"`
	Tags     []string `json:"tags,omitempty"`

	Status           string `json:"status"`
	IsCheckoutable   bool   `json:"is_checkoutable"`
	MaxCheckoutDays  int    `json:"max_checkout_days"`
	RequiresApproval bool   `json:"requires_approval"`

	// Derived from the quantity partition by Refresh; not stored.
	IsAvailable bool `json:"is_available"`
	IsLowStock  bool `json:"is_low_stock"`

	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields an authorized actor must supply when
// creating an item.
func (i *Item) Validate() error {
	fields := map[string]string{}
	if i.Name == "" {
		fields["name"] = "item name is required"
	}
	if i.Category == "" {
		fields["category"] = "category is required"
	}
	if i.TotalQuantity < 0 {
		fields["total_quantity"] = "quantity cannot be negative"
	}
	if i.AvailableQuantity < 0 {
		fields["available_quantity"] = "available quantity cannot be negative"
	}
	if i.ReservedQuantity < 0 {
		fields["reserved_quantity"] = "reserved quantity cannot be negative"
	}
	if i.Status != "" && !ValidStatus(i.Status) {
		fields["status"] = "invalid status"
	}
	if len(fields) > 0 {
		return errs.ValidationFields("validation failed", fields)
	}
	return nil
}

// Clamp enforces the partition invariants on write: available never
// exceeds total, and reserved shrinks so the partition fits.
func (i *Item) Clamp() {
	if i.AvailableQuantity > i.TotalQuantity {
		i.AvailableQuantity = i.TotalQuantity
	}
	if i.AvailableQuantity+i.ReservedQuantity > i.TotalQuantity {
		i.ReservedQuantity = i.TotalQuantity - i.AvailableQuantity
	}
}

// CanSatisfy reports whether a checkout of qty units is admissible.
func (i *Item) CanSatisfy(qty int) error {
	if qty < 1 {
		return errs.Validation("quantity must be at least 1")
	}
	if !i.IsCheckoutable {
		return errs.Validation("item %s is not available for checkout", i.Name)
	}
	if i.AvailableQuantity < qty {
		return errs.Validation("insufficient quantity for %s: available %d, requested %d",
			i.Name, i.AvailableQuantity, qty)
	}
	return nil
}

// Reserve moves qty units from available to reserved.
func (i *Item) Reserve(qty int) error {
	if err := i.CanSatisfy(qty); err != nil {
		return err
	}
	i.AvailableQuantity -= qty
	i.ReservedQuantity += qty
	return nil
}

// Release moves qty units from reserved back to available, clamping
// so the partition invariants survive inconsistent inputs.
func (i *Item) Release(qty int) {
	if qty < 0 {
		return
	}
	i.AvailableQuantity += qty
	if i.AvailableQuantity > i.TotalQuantity {
		i.AvailableQuantity = i.TotalQuantity
	}
	i.ReservedQuantity -= qty
	if i.ReservedQuantity < 0 {
		i.ReservedQuantity = 0
	}
}

// SetTotalQuantity updates the total and shrinks the partition when
// the new total no longer covers it. Reserved stock is kept intact as
// long as possible since it backs open transactions.
func (i *Item) SetTotalQuantity(newTotal int) error {
	if newTotal < 0 {
		return errs.Validation("quantity cannot be negative")
	}
	i.TotalQuantity = newTotal
	if i.AvailableQuantity+i.ReservedQuantity > newTotal {
		i.AvailableQuantity = newTotal - i.ReservedQuantity
		if i.AvailableQuantity < 0 {
			i.AvailableQuantity = 0
			i.ReservedQuantity = newTotal
		}
	}
	return nil
}

// Refresh recomputes the derived flags: whether the item can be
// checked out right now, and whether available stock fell to 10% of
// total. Called on every read so responses reflect the current
// partition.
func (i *Item) Refresh() {
	i.IsAvailable = i.AvailableQuantity > 0 && i.Status == StatusActive && i.IsCheckoutable
	i.IsLowStock = i.AvailableQuantity*10 <= i.TotalQuantity
}
