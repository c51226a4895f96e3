package masterdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := LoadFile(filepath.Join("testdata", "masterdata.yaml"))
	require.NoError(t, err)
	return r
}

func TestLoadFile(t *testing.T) {
	r := loadTestRegistry(t)

	t.Run("recipes keep exact quantities", func(t *testing.T) {
		recipe, err := r.Recipe("bread")
		require.NoError(t, err)
		assert.Equal(t, "bread", recipe.DishID)
		assert.True(t, decimal.NewFromInt(2).Equal(recipe.OutputYield))
		require.Len(t, recipe.Components, 2)
		assert.Equal(t, inventory.ProductRef("sugar"), recipe.Components[1].Item)
		assert.Equal(t, "0.125", recipe.Components[1].GrossQuantity.String())
	})

	t.Run("dish ingredients are allowed", func(t *testing.T) {
		recipe, err := r.Recipe("toast")
		require.NoError(t, err)
		assert.Equal(t, inventory.DishRef("bread"), recipe.Components[0].Item)
	})

	t.Run("returned recipes are copies", func(t *testing.T) {
		recipe, err := r.Recipe("bread")
		require.NoError(t, err)
		recipe.Components[0].GrossQuantity = decimal.NewFromInt(100)

		again, err := r.Recipe("bread")
		require.NoError(t, err)
		assert.Equal(t, "0.5", again.Components[0].GrossQuantity.String())
	})

	t.Run("unknown recipe", func(t *testing.T) {
		_, err := r.Recipe("cake")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("warehouses are sorted", func(t *testing.T) {
		ws := r.Warehouses()
		require.Len(t, ws, 2)
		assert.Equal(t, "W1", ws[0].ID)
		assert.Equal(t, "W2", ws[1].ID)
	})

	t.Run("item names", func(t *testing.T) {
		assert.Equal(t, "Wheat flour", r.ItemName(inventory.ProductRef("flour")))
		assert.Equal(t, "Bread loaf", r.ItemName(inventory.DishRef("bread")))
		assert.Equal(t, "ghost", r.ItemName(inventory.ProductRef("ghost")))
	})
}

func TestRegistry_Validate(t *testing.T) {
	r := loadTestRegistry(t)

	tests := []struct {
		name    string
		check   func() error
		wantErr error
	}{
		{"known product", func() error { return r.ValidateItem(inventory.ProductRef("flour")) }, nil},
		{"known dish", func() error { return r.ValidateItem(inventory.DishRef("toast")) }, nil},
		{"product id used as dish", func() error { return r.ValidateItem(inventory.DishRef("flour")) }, shared.ErrNotFound},
		{"malformed item", func() error { return r.ValidateItem(inventory.ItemRef{}) }, shared.ErrInvalidInput},
		{"known warehouse", func() error { return r.ValidateWarehouse("W2") }, nil},
		{"unknown warehouse", func() error { return r.ValidateWarehouse("W9") }, shared.ErrNotFound},
		{"supplier", func() error { return r.ValidateCounterparty("mill", "supplier") }, nil},
		{"client used as supplier", func() error { return r.ValidateCounterparty("cafe", "supplier") }, shared.ErrInvalidInput},
		{"unknown counterparty", func() error { return r.ValidateCounterparty("bank", "client") }, shared.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{
			name:    "malformed yaml",
			yaml:    "warehouses: [",
			message: "parsing master data",
		},
		{
			name:    "missing warehouse name",
			yaml:    "warehouses:\n  - id: W1\n",
			message: "File.warehouses[0].name failed required",
		},
		{
			name:    "duplicate product",
			yaml:    "products:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
			message: "duplicate product a",
		},
		{
			name:    "bad counterparty role",
			yaml:    "counterparties:\n  - {id: x, name: X, role: bank}\n",
			message: "role failed oneof",
		},
		{
			name: "recipe with unknown ingredient",
			yaml: `
dishes:
  - id: soup
    name: Soup
    recipe:
      yield: "1"
      components:
        - {item: "product:water", gross: "1"}
`,
			message: "product:water",
		},
		{
			name: "non numeric gross",
			yaml: `
products:
  - {id: water, name: Water}
dishes:
  - id: soup
    name: Soup
    recipe:
      yield: "1"
      components:
        - {item: "product:water", gross: "a lot"}
`,
			message: "gross failed numeric",
		},
		{
			name: "zero yield",
			yaml: `
products:
  - {id: water, name: Water}
dishes:
  - id: soup
    name: Soup
    recipe:
      yield: "0"
      components:
        - {item: "product:water", gross: "1"}
`,
			message: "positive output yield",
		},
		{
			name: "self referencing dish",
			yaml: `
dishes:
  - id: soup
    name: Soup
    recipe:
      yield: "1"
      components:
        - {item: "dish:soup", gross: "1"}
`,
			message: "uses itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, r.Warehouses())
}
