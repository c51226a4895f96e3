package inventory

import (
	"fmt"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
)

// ItemKind discriminates the two kinds of stock-holding items
type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindDish    ItemKind = "dish"
)

// IsValid returns true if the kind is known
func (k ItemKind) IsValid() bool {
	return k == ItemKindProduct || k == ItemKindDish
}

// ItemRef references exactly one product or one dish
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

// ProductRef returns a reference to a raw product
func ProductRef(id string) ItemRef {
	return ItemRef{Kind: ItemKindProduct, ID: id}
}

// DishRef returns a reference to a dish (finished good)
func DishRef(id string) ItemRef {
	return ItemRef{Kind: ItemKindDish, ID: id}
}

// ParseItemRef parses the "kind:id" form produced by String
func ParseItemRef(s string) (ItemRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	ref := ItemRef{Kind: ItemKind(kind), ID: id}
	if !ok {
		return ItemRef{}, fmt.Errorf("%w: item reference %q must look like product:<id> or dish:<id>", shared.ErrInvalidInput, s)
	}
	if err := ref.Validate(); err != nil {
		return ItemRef{}, err
	}
	return ref, nil
}

// Validate checks that exactly one well-formed item is referenced
func (r ItemRef) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown item kind %q", shared.ErrInvalidInput, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: item id is required", shared.ErrInvalidInput)
	}
	return nil
}

// IsDish returns true for dish references
func (r ItemRef) IsDish() bool {
	return r.Kind == ItemKindDish
}

func (r ItemRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// StockKey identifies one item in one warehouse
type StockKey struct {
	Item        ItemRef `json:"item"`
	WarehouseID string  `json:"warehouse_id"`
}

// NewStockKey creates a stock key
func NewStockKey(item ItemRef, warehouseID string) StockKey {
	return StockKey{Item: item, WarehouseID: warehouseID}
}

func (k StockKey) String() string {
	return k.Item.String() + "@" + k.WarehouseID
}

// LockName is the name used when serializing mutations of this key
func (k StockKey) LockName() string {
	return "stock:" + k.String()
}
