package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductPremium  ProductType = "premium"
	ProductExercise ProductType = "exercise"
	ProductMarathon ProductType = "marathon"
)

// ProductRef is the tagged product payload carried in an order's metadata
// column. It is the entitlement grantor's only input besides the order's
// user and status.
//
//   - premium:  Duration = days the premium window is extended by
//   - exercise: TargetID = exercise id
//   - marathon: TargetID = marathon id, Duration = program length in days
type ProductRef struct {
	Type     ProductType `json:"type"`
	TargetID string      `json:"targetId,omitempty"`
	Name     string      `json:"name,omitempty"`
	Duration int         `json:"duration,omitempty"`
}

// Validate checks the fields required for the ref's own type.
func (p ProductRef) Validate() error {
	switch p.Type {
	case ProductPremium:
		if p.Duration <= 0 {
			return fmt.Errorf("premium product requires a positive duration")
		}
	case ProductExercise:
		if p.TargetID == "" {
			return fmt.Errorf("exercise product requires a target id")
		}
	case ProductMarathon:
		if p.TargetID == "" {
			return fmt.Errorf("marathon product requires a target id")
		}
		if p.Duration <= 0 {
			return fmt.Errorf("marathon product requires a positive duration")
		}
	default:
		return fmt.Errorf("unknown product type %q", p.Type)
	}
	return nil
}

// MarshalMetadata encodes the ref into the order's metadata column.
func (p ProductRef) MarshalMetadata() (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode product metadata: %w", err)
	}
	return raw, nil
}

// ParseProductRef decodes the metadata payload stored on an order.
func ParseProductRef(raw []byte) (ProductRef, error) {
	var ref ProductRef
	if len(raw) == 0 {
		return ref, fmt.Errorf("order has no product metadata")
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ref, fmt.Errorf("decode product metadata: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return ref, err
	}
	return ref, nil
}
