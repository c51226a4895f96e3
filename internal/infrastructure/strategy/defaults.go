package strategy

import (
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/strategy/allocation"
	"github.com/erp/stockledger/internal/infrastructure/strategy/batch"
	"github.com/erp/stockledger/internal/infrastructure/strategy/cost"
)

// NewRegistryWithDefaults creates a registry with the FIFO strategies
// registered and set as defaults for every strategy type.
func NewRegistryWithDefaults() (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	fifoCost := cost.NewFIFOCostStrategy()
	if err := r.RegisterCostStrategy(fifoCost); err != nil {
		return nil, err
	}

	fifoAlloc := allocation.NewFIFOAllocationStrategy()
	if err := r.RegisterAllocationStrategy(fifoAlloc); err != nil {
		return nil, err
	}

	fifoBatch := batch.NewFIFOBatchStrategy()
	if err := r.RegisterBatchStrategy(fifoBatch); err != nil {
		return nil, err
	}

	if err := r.SetDefault(strategy.StrategyTypeCost, fifoCost.Name()); err != nil {
		return nil, err
	}
	if err := r.SetDefault(strategy.StrategyTypeAllocation, fifoAlloc.Name()); err != nil {
		return nil, err
	}
	if err := r.SetDefault(strategy.StrategyTypeBatch, fifoBatch.Name()); err != nil {
		return nil, err
	}

	return r, nil
}
