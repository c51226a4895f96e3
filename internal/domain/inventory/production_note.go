package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductionLine is one dish to produce. Recipe is frozen on confirmation so
// later recipe edits do not change history.
type ProductionLine struct {
	DishID   string          `json:"dish_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Recipe   *Recipe         `json:"recipe,omitempty"`
}

// ProductionNote turns raw products into dishes in one warehouse
type ProductionNote struct {
	DocumentHeader
	WarehouseID string            `json:"warehouse_id"`
	Lines       []ProductionLine  `json:"lines"`
	Ingredients []ConsumptionLine `json:"ingredients,omitempty"`
}

// NewProductionNote creates a draft production note
func NewProductionNote(date time.Time, warehouseID string) *ProductionNote {
	return &ProductionNote{
		DocumentHeader: newDocumentHeader(date),
		WarehouseID:    warehouseID,
	}
}

// AddLine appends a dish to produce
func (d *ProductionNote) AddLine(dishID string, qty decimal.Decimal) error {
	if err := d.EnsureDraft(); err != nil {
		return err
	}
	d.Lines = append(d.Lines, ProductionLine{DishID: dishID, Quantity: qty})
	return validateLineItem(len(d.Lines)-1, DishRef(dishID), qty)
}

// Kind returns the document kind
func (d *ProductionNote) Kind() DocumentKind { return KindProductionNote }

func (d *ProductionNote) sealed() {}

// Validate checks the draft is well formed
func (d *ProductionNote) Validate() error {
	if err := d.validateHeader(); err != nil {
		return err
	}
	if err := requireField("warehouse", d.WarehouseID); err != nil {
		return err
	}
	if err := requireLines(len(d.Lines)); err != nil {
		return err
	}
	for i, l := range d.Lines {
		if err := validateLineItem(i, DishRef(l.DishID), l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// StockKeys lists the dish keys and every ingredient key
func (d *ProductionNote) StockKeys(env KeyEnv) ([]StockKey, error) {
	recipes, err := d.resolveRecipes(env.Recipes)
	if err != nil {
		return nil, err
	}
	items := make([]ItemRef, 0)
	for i, l := range d.Lines {
		items = append(items, DishRef(l.DishID))
		for _, c := range recipes[i].Components {
			items = append(items, c.Item)
		}
	}
	return lineKeys(d.WarehouseID, items...), nil
}

func (d *ProductionNote) resolveRecipes(book RecipeBook) ([]*Recipe, error) {
	out := make([]*Recipe, len(d.Lines))
	for i, l := range d.Lines {
		if l.Recipe != nil {
			out[i] = l.Recipe
			continue
		}
		if book == nil {
			return nil, fmt.Errorf("%w: line %d: no recipe recorded for dish %s", shared.ErrInvalidState, i+1, l.DishID)
		}
		r, err := book.Recipe(l.DishID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out[i] = r.Clone()
	}
	return out, nil
}

// ApplyStock consumes the ingredients FIFO and adds one dish batch per line,
// costed at sum(ingredient blended cost x gross quantity) / output yield.
func (d *ProductionNote) ApplyStock(ctx context.Context, tx *StockTx, env EffectEnv) (*Effect, error) {
	recipes, err := d.resolveRecipes(env.Recipes)
	if err != nil {
		return nil, err
	}

	onHand := func(item ItemRef) decimal.Decimal {
		return tx.OnHand(NewStockKey(item, d.WarehouseID))
	}
	for i, l := range d.Lines {
		if producible := recipes[i].Producible(onHand); producible.LessThan(l.Quantity) {
			return nil, fmt.Errorf("%w: line %d: %s needs %s, producible %s",
				shared.ErrInsufficientRawMaterial, i+1, l.DishID, l.Quantity, producible)
		}
	}

	// aggregate so shared ingredients are checked and consumed once
	order := make([]ItemRef, 0)
	required := make(map[ItemRef]decimal.Decimal)
	for i, l := range d.Lines {
		for _, c := range recipes[i].Requirement(l.Quantity) {
			if _, seen := required[c.Item]; !seen {
				order = append(order, c.Item)
			}
			required[c.Item] = required[c.Item].Add(c.GrossQuantity)
		}
	}
	for _, item := range order {
		if have := onHand(item); have.LessThan(required[item]) {
			return nil, fmt.Errorf("%w: %s needs %s, on hand %s",
				shared.ErrInsufficientRawMaterial, item, required[item], have)
		}
	}

	eff := newEffect(d.ID)
	blended := make(map[ItemRef]decimal.Decimal, len(order))
	ingredients := make([]ConsumptionLine, 0, len(order))
	for _, item := range order {
		key := NewStockKey(item, d.WarehouseID)
		c, err := env.Engine.Consume(ctx, tx, key, required[item], d.Date)
		if err != nil {
			if errors.Is(err, shared.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: %v", shared.ErrInsufficientRawMaterial, err)
			}
			return nil, err
		}
		line := ConsumptionLine{Item: item, Quantity: required[item]}
		line.record(c)
		ingredients = append(ingredients, line)
		blended[item] = c.UnitCost
		eff.add(key, required[item].Neg(), c.UnitCost)
	}

	for i := range d.Lines {
		line := &d.Lines[i]
		r := recipes[i]
		sum := decimal.Zero
		for _, c := range r.Components {
			sum = sum.Add(blended[c.Item].Mul(c.GrossQuantity))
		}
		line.UnitCost = sum.Div(r.OutputYield)
		line.Recipe = r

		b := StockBatch{
			ID:               BatchIDFor(d.ID, i),
			Item:             DishRef(line.DishID),
			WarehouseID:      d.WarehouseID,
			Quantity:         line.Quantity,
			UnitCost:         line.UnitCost,
			ReceiptDate:      d.Date,
			SourceDocumentID: d.ID,
		}
		if err := tx.AddBatch(b); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		eff.add(b.Key(), line.Quantity, line.UnitCost)
	}
	d.Ingredients = ingredients
	return eff, nil
}

// Clone returns a deep copy
func (d *ProductionNote) Clone() Document {
	c := *d
	c.DocumentHeader = cloneHeader(d.DocumentHeader)
	c.Lines = make([]ProductionLine, len(d.Lines))
	for i, l := range d.Lines {
		l.Recipe = l.Recipe.Clone()
		c.Lines[i] = l
	}
	if d.Ingredients != nil {
		c.Ingredients = make([]ConsumptionLine, len(d.Ingredients))
		for i, l := range d.Ingredients {
			c.Ingredients[i] = l.clone()
		}
	}
	return &c
}
