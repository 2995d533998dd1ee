package orchestrator

import (
	"fmt"

	"github.com/aescanero/cutdeck/internal/application/graphs"
	"github.com/aescanero/cutdeck/pkg/pregel"
)

// Validator validates run requests
type Validator struct {
	catalog *graphs.Catalog
}

// NewValidator creates a new run request validator
func NewValidator(catalog *graphs.Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate checks a run request and returns the compiled plan
func (v *Validator) Validate(name string, params map[string]interface{}) (*pregel.Plan, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: graph name is required", graphs.ErrInvalidParams)
	}

	if !v.catalog.Has(name) {
		return nil, fmt.Errorf("%w: %s", graphs.ErrGraphNotFound, name)
	}

	// Validate params
	for key, value := range params {
		if err := v.validateParam(key, value); err != nil {
			return nil, fmt.Errorf("%w: %v", graphs.ErrInvalidParams, err)
		}
	}

	plan, err := v.catalog.Build(name, params)
	if err != nil {
		return nil, err
	}

	return plan, nil
}

// validateParam accepts scalar values only
func (v *Validator) validateParam(key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("parameter name is required")
	}

	switch value.(type) {
	case nil, bool, string, int, int32, int64, float64:
		return nil
	default:
		return fmt.Errorf("parameter %s has unsupported type %T", key, value)
	}
}
