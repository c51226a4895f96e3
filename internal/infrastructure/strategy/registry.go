package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
)

// StrategyRegistry manages strategy registrations
type StrategyRegistry struct {
	mu                   sync.RWMutex
	costStrategies       map[string]strategy.CostCalculationStrategy
	allocationStrategies map[string]strategy.PaymentAllocationStrategy
	batchStrategies      map[string]strategy.BatchManagementStrategy
	defaults             map[strategy.StrategyType]string
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		costStrategies:       make(map[string]strategy.CostCalculationStrategy),
		allocationStrategies: make(map[string]strategy.PaymentAllocationStrategy),
		batchStrategies:      make(map[string]strategy.BatchManagementStrategy),
		defaults:             make(map[strategy.StrategyType]string),
	}
}

// RegisterCostStrategy registers a cost calculation strategy
func (r *StrategyRegistry) RegisterCostStrategy(s strategy.CostCalculationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.costStrategies[name]; exists {
		return fmt.Errorf("%w: cost strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.costStrategies[name] = s
	return nil
}

// GetCostStrategy returns a cost strategy by name, or the default if name is empty
func (r *StrategyRegistry) GetCostStrategy(name string) (strategy.CostCalculationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, err := r.resolveLocked(strategy.StrategyTypeCost, name)
	if err != nil {
		return nil, err
	}
	s, exists := r.costStrategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: cost strategy '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// RegisterAllocationStrategy registers a payment allocation strategy
func (r *StrategyRegistry) RegisterAllocationStrategy(s strategy.PaymentAllocationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.allocationStrategies[name]; exists {
		return fmt.Errorf("%w: allocation strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.allocationStrategies[name] = s
	return nil
}

// GetAllocationStrategy returns an allocation strategy by name, or the default if name is empty
func (r *StrategyRegistry) GetAllocationStrategy(name string) (strategy.PaymentAllocationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, err := r.resolveLocked(strategy.StrategyTypeAllocation, name)
	if err != nil {
		return nil, err
	}
	s, exists := r.allocationStrategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// RegisterBatchStrategy registers a batch management strategy
func (r *StrategyRegistry) RegisterBatchStrategy(s strategy.BatchManagementStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.batchStrategies[name]; exists {
		return fmt.Errorf("%w: batch strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.batchStrategies[name] = s
	return nil
}

// GetBatchStrategy returns a batch strategy by name, or the default if name is empty
func (r *StrategyRegistry) GetBatchStrategy(name string) (strategy.BatchManagementStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, err := r.resolveLocked(strategy.StrategyTypeBatch, name)
	if err != nil {
		return nil, err
	}
	s, exists := r.batchStrategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: batch strategy '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// List returns the registered names for a strategy type, sorted
func (r *StrategyRegistry) List(strategyType strategy.StrategyType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch strategyType {
	case strategy.StrategyTypeCost:
		for name := range r.costStrategies {
			names = append(names, name)
		}
	case strategy.StrategyTypeAllocation:
		for name := range r.allocationStrategies {
			names = append(names, name)
		}
	case strategy.StrategyTypeBatch:
		for name := range r.batchStrategies {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the default strategy for a strategy type
func (r *StrategyRegistry) SetDefault(strategyType strategy.StrategyType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRegisteredLocked(strategyType, name) {
		return fmt.Errorf("%w: strategy '%s' of type '%s' not found", shared.ErrNotFound, name, strategyType)
	}

	r.defaults[strategyType] = name
	return nil
}

// GetDefault returns the default strategy name for a strategy type
func (r *StrategyRegistry) GetDefault(strategyType strategy.StrategyType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[strategyType]
}

// IsRegistered returns true if a strategy with the given name is registered for the type
func (r *StrategyRegistry) IsRegistered(strategyType strategy.StrategyType, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRegisteredLocked(strategyType, name)
}

func (r *StrategyRegistry) resolveLocked(strategyType strategy.StrategyType, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	name = r.defaults[strategyType]
	if name == "" {
		return "", fmt.Errorf("%w: no default %s strategy set", shared.ErrNotFound, strategyType)
	}
	return name, nil
}

// isRegisteredLocked checks registration without locking (caller must hold lock)
func (r *StrategyRegistry) isRegisteredLocked(strategyType strategy.StrategyType, name string) bool {
	switch strategyType {
	case strategy.StrategyTypeCost:
		_, exists := r.costStrategies[name]
		return exists
	case strategy.StrategyTypeAllocation:
		_, exists := r.allocationStrategies[name]
		return exists
	case strategy.StrategyTypeBatch:
		_, exists := r.batchStrategies[name]
		return exists
	default:
		return false
	}
}
