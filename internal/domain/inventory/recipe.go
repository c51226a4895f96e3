package inventory

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RecipeComponent is one ingredient of a recipe
type RecipeComponent struct {
	Item          ItemRef         `json:"item"`
	GrossQuantity decimal.Decimal `json:"gross_quantity"`
}

// Recipe describes how many units of a dish one run of its components yields
type Recipe struct {
	DishID      string            `json:"dish_id"`
	OutputYield decimal.Decimal   `json:"output_yield"`
	Components  []RecipeComponent `json:"components"`
}

// RecipeBook looks up recipes by dish
type RecipeBook interface {
	Recipe(dishID string) (*Recipe, error)
}

// Validate checks the recipe is usable for production
func (r *Recipe) Validate() error {
	if r.DishID == "" {
		return fmt.Errorf("%w: recipe dish id is required", shared.ErrInvalidInput)
	}
	if !r.OutputYield.IsPositive() {
		return fmt.Errorf("%w: recipe for %s must have a positive output yield", shared.ErrInvalidInput, r.DishID)
	}
	if len(r.Components) == 0 {
		return fmt.Errorf("%w: recipe for %s has no components", shared.ErrInvalidInput, r.DishID)
	}
	for _, c := range r.Components {
		if err := c.Item.Validate(); err != nil {
			return err
		}
		if !c.GrossQuantity.IsPositive() {
			return fmt.Errorf("%w: recipe for %s: %s gross quantity must be positive", shared.ErrInvalidInput, r.DishID, c.Item)
		}
	}
	return nil
}

// Requirement returns the quantity of each component needed to produce qty
// dish units, in component order.
func (r *Recipe) Requirement(qty decimal.Decimal) []RecipeComponent {
	out := make([]RecipeComponent, 0, len(r.Components))
	for _, c := range r.Components {
		out = append(out, RecipeComponent{
			Item:          c.Item,
			GrossQuantity: c.GrossQuantity.Mul(qty).Div(r.OutputYield),
		})
	}
	return out
}

// Producible returns floor(min(onHand/gross) * yield) over the components
func (r *Recipe) Producible(onHand func(ItemRef) decimal.Decimal) decimal.Decimal {
	if len(r.Components) == 0 || !r.OutputYield.IsPositive() {
		return decimal.Zero
	}
	var units decimal.Decimal
	found := false
	for _, c := range r.Components {
		if !c.GrossQuantity.IsPositive() {
			continue
		}
		// multiply before dividing so exact ratios stay exact
		u := onHand(c.Item).Mul(r.OutputYield).Div(c.GrossQuantity)
		if !found || u.LessThan(units) {
			units = u
			found = true
		}
	}
	if !found || units.IsNegative() {
		return decimal.Zero
	}
	return units.Floor()
}

// Clone returns a deep copy
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	c := *r
	c.Components = append([]RecipeComponent(nil), r.Components...)
	return &c
}
