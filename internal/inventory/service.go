// internal/inventory/service.go
package inventory

import (
	"context"

	"github.com/google/uuid"

	"stocktrack/internal/web"
)

// Filter narrows item listings.
type Filter struct {
	Category string
	Status   string
	Search   string
	Page     int
	Limit    int
}

// BulkResult is the split outcome of a bulk import: the operation
// never aborts entirely, it reports which rows succeeded.
type BulkResult struct {
	Successful []*Item      `json:"successful"`
	Failed     []BulkError  `json:"failed"`
}

// BulkError names one rejected row and the reason.
type BulkError struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Service defines the interface for the inventory catalog.
type Service interface {
	Create(ctx context.Context, createdBy uuid.UUID, item *Item) (*Item, error)
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, modifiedBy uuid.UUID, item *Item) (*Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Item, *web.Pagination, error)
	BulkImport(ctx context.Context, createdBy uuid.UUID, items []*Item) (*BulkResult, error)
}
