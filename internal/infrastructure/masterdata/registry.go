// Package masterdata provides the read-only product, dish, recipe and
// warehouse registry the ledger consults. The registry is loaded from a YAML
// file and never changes afterwards.
package masterdata

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrFileNotFound is returned when the master data file does not exist
var ErrFileNotFound = errors.New("masterdata: file not found")

// File is the YAML layout of a master data file
type File struct {
	Warehouses     []WarehouseEntry    `yaml:"warehouses" validate:"dive"`
	Products       []ProductEntry      `yaml:"products" validate:"dive"`
	Dishes         []DishEntry         `yaml:"dishes" validate:"dive"`
	Counterparties []CounterpartyEntry `yaml:"counterparties" validate:"dive"`
}

// WarehouseEntry describes one warehouse
type WarehouseEntry struct {
	ID   string `yaml:"id" validate:"required,max=100"`
	Name string `yaml:"name" validate:"required"`
}

// ProductEntry describes one raw product
type ProductEntry struct {
	ID   string `yaml:"id" validate:"required,max=100"`
	Name string `yaml:"name" validate:"required"`
	Unit string `yaml:"unit"`
}

// DishEntry describes one produced dish and its recipe
type DishEntry struct {
	ID     string      `yaml:"id" validate:"required,max=100"`
	Name   string      `yaml:"name" validate:"required"`
	Recipe RecipeEntry `yaml:"recipe"`
}

// RecipeEntry is the YAML form of inventory.Recipe. Quantities are kept as
// strings so no digit is lost to float parsing.
type RecipeEntry struct {
	Yield      string           `yaml:"yield" validate:"required,numeric"`
	Components []ComponentEntry `yaml:"components" validate:"required,min=1,dive"`
}

// ComponentEntry is one recipe ingredient, item given as "product:<id>" or "dish:<id>"
type ComponentEntry struct {
	Item  string `yaml:"item" validate:"required"`
	Gross string `yaml:"gross" validate:"required,numeric"`
}

// CounterpartyEntry describes a supplier or client
type CounterpartyEntry struct {
	ID   string `yaml:"id" validate:"required,max=100"`
	Name string `yaml:"name" validate:"required"`
	Role string `yaml:"role" validate:"required,oneof=supplier client"`
}

// Warehouse is a registered warehouse
type Warehouse struct {
	ID   string
	Name string
}

// Product is a registered raw product
type Product struct {
	ID   string
	Name string
	Unit string
}

// Dish is a registered dish
type Dish struct {
	ID   string
	Name string
}

// Counterparty is a registered supplier or client
type Counterparty struct {
	ID   string
	Name string
	Role string
}

// Registry answers master data lookups. It is immutable and safe for
// concurrent use.
type Registry struct {
	warehouses     map[string]Warehouse
	products       map[string]Product
	dishes         map[string]Dish
	recipes        map[string]*inventory.Recipe
	counterparties map[string]Counterparty
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		return name
	})
}

// LoadFile reads and validates a YAML master data file
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading master data: %w", err)
	}
	return Load(data)
}

// Load parses and validates YAML master data
func Load(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing master data: %v", shared.ErrInvalidInput, err)
	}
	return New(f)
}

// New builds a registry from f after validating it
func New(f File) (*Registry, error) {
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidInput, describe(err))
	}

	r := &Registry{
		warehouses:     make(map[string]Warehouse, len(f.Warehouses)),
		products:       make(map[string]Product, len(f.Products)),
		dishes:         make(map[string]Dish, len(f.Dishes)),
		recipes:        make(map[string]*inventory.Recipe, len(f.Dishes)),
		counterparties: make(map[string]Counterparty, len(f.Counterparties)),
	}
	for _, w := range f.Warehouses {
		if _, dup := r.warehouses[w.ID]; dup {
			return nil, duplicate("warehouse", w.ID)
		}
		r.warehouses[w.ID] = Warehouse(w)
	}
	for _, p := range f.Products {
		if _, dup := r.products[p.ID]; dup {
			return nil, duplicate("product", p.ID)
		}
		r.products[p.ID] = Product(p)
	}
	for _, c := range f.Counterparties {
		if _, dup := r.counterparties[c.ID]; dup {
			return nil, duplicate("counterparty", c.ID)
		}
		r.counterparties[c.ID] = Counterparty(c)
	}
	for _, d := range f.Dishes {
		if _, dup := r.dishes[d.ID]; dup {
			return nil, duplicate("dish", d.ID)
		}
		r.dishes[d.ID] = Dish{ID: d.ID, Name: d.Name}
	}
	// recipes may reference dishes declared later in the file
	for _, d := range f.Dishes {
		recipe, err := r.buildRecipe(d)
		if err != nil {
			return nil, err
		}
		r.recipes[d.ID] = recipe
	}
	return r, nil
}

func (r *Registry) buildRecipe(d DishEntry) (*inventory.Recipe, error) {
	yield, err := decimal.NewFromString(d.Recipe.Yield)
	if err != nil {
		return nil, fmt.Errorf("%w: dish %s yield %q", shared.ErrInvalidInput, d.ID, d.Recipe.Yield)
	}
	recipe := &inventory.Recipe{DishID: d.ID, OutputYield: yield}
	for _, c := range d.Recipe.Components {
		item, err := inventory.ParseItemRef(c.Item)
		if err != nil {
			return nil, fmt.Errorf("dish %s: %w", d.ID, err)
		}
		if err := r.ValidateItem(item); err != nil {
			return nil, fmt.Errorf("%w: dish %s uses unknown ingredient %s", shared.ErrInvalidInput, d.ID, item)
		}
		if item.IsDish() && item.ID == d.ID {
			return nil, fmt.Errorf("%w: dish %s uses itself as an ingredient", shared.ErrInvalidInput, d.ID)
		}
		gross, err := decimal.NewFromString(c.Gross)
		if err != nil {
			return nil, fmt.Errorf("%w: dish %s gross %q", shared.ErrInvalidInput, d.ID, c.Gross)
		}
		recipe.Components = append(recipe.Components, inventory.RecipeComponent{Item: item, GrossQuantity: gross})
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}
	return recipe, nil
}

// Recipe implements inventory.RecipeBook; the returned recipe is a copy
func (r *Registry) Recipe(dishID string) (*inventory.Recipe, error) {
	recipe, ok := r.recipes[dishID]
	if !ok {
		return nil, fmt.Errorf("%w: recipe for dish %s", shared.ErrNotFound, dishID)
	}
	return recipe.Clone(), nil
}

// ValidateItem returns shared.ErrNotFound for unregistered items
func (r *Registry) ValidateItem(item inventory.ItemRef) error {
	if err := item.Validate(); err != nil {
		return err
	}
	var ok bool
	if item.IsDish() {
		_, ok = r.dishes[item.ID]
	} else {
		_, ok = r.products[item.ID]
	}
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNotFound, item)
	}
	return nil
}

// ValidateWarehouse returns shared.ErrNotFound for unregistered warehouses
func (r *Registry) ValidateWarehouse(id string) error {
	if _, ok := r.warehouses[id]; !ok {
		return fmt.Errorf("%w: warehouse %s", shared.ErrNotFound, id)
	}
	return nil
}

// ValidateCounterparty checks id is registered with the given role
func (r *Registry) ValidateCounterparty(id, role string) error {
	c, ok := r.counterparties[id]
	if !ok {
		return fmt.Errorf("%w: counterparty %s", shared.ErrNotFound, id)
	}
	if c.Role != role {
		return fmt.Errorf("%w: counterparty %s is a %s, not a %s", shared.ErrInvalidInput, id, c.Role, role)
	}
	return nil
}

// Warehouse looks up a warehouse
func (r *Registry) Warehouse(id string) (Warehouse, bool) {
	w, ok := r.warehouses[id]
	return w, ok
}

// Product looks up a product
func (r *Registry) Product(id string) (Product, bool) {
	p, ok := r.products[id]
	return p, ok
}

// Dish looks up a dish
func (r *Registry) Dish(id string) (Dish, bool) {
	d, ok := r.dishes[id]
	return d, ok
}

// Warehouses lists warehouses ordered by id
func (r *Registry) Warehouses() []Warehouse {
	out := make([]Warehouse, 0, len(r.warehouses))
	for _, w := range r.warehouses {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b Warehouse) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ItemName returns the display name of item, or its id when unknown
func (r *Registry) ItemName(item inventory.ItemRef) string {
	if item.IsDish() {
		if d, ok := r.dishes[item.ID]; ok {
			return d.Name
		}
	} else if p, ok := r.products[item.ID]; ok {
		return p.Name
	}
	return item.ID
}

func duplicate(what, id string) error {
	return fmt.Errorf("%w: duplicate %s %s", shared.ErrInvalidInput, what, id)
}

// describe flattens validator errors into one line
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
	}
	return strings.Join(parts, "; ")
}
