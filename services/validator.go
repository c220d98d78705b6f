package services

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"bulkjobs/models"
)

// Per-item validation failures. Their messages are what callers see.
var (
	ErrItemIDRequired       = errors.New("Item ID is required")
	ErrProductNameRequired  = errors.New("Product name is required")
	ErrProductPriceInvalid  = errors.New("Product price must be a positive number")
	ErrProductIDRequired    = errors.New("Product ID is required")
	ErrQuantityRequired     = errors.New("Quantity is required")
	ErrCategoryNameRequired = errors.New("Category name is required")
	ErrNoFieldsToUpdate     = errors.New("No fields to update")
	ErrItemNotFound         = errors.New("Item not found")
	ErrItemExists           = errors.New("Item already exists")
)

// MutationKind says how a staged mutation is written
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationUpdate
	MutationDelete
)

// Mutation is the validated, shaped write for one item
type Mutation struct {
	Kind   MutationKind
	ID     string
	Fields map[string]interface{}
}

// importRule checks the payload of an item imported into one collection
type importRule func(fields map[string]interface{}) error

// Validator holds the per-collection import rules. It does no I/O; the same
// input always yields the same outcome.
type Validator struct {
	importRules map[string]importRule
}

func NewValidator() *Validator {
	return &Validator{
		importRules: map[string]importRule{
			"products":   validateProduct,
			"inventory":  validateInventory,
			"categories": validateCategory,
		},
	}
}

// Validate turns one item into a mutation or returns why it cannot be applied.
// collection is the logical name, actor the requestor, now the run's clock.
func (v *Validator) Validate(action Action, collection string, item models.Item, actor string, now time.Time) (Mutation, error) {
	if strings.TrimSpace(item.ID) == "" {
		return Mutation{}, ErrItemIDRequired
	}

	switch a := action.(type) {
	case Import:
		if rule, ok := v.importRules[strings.ToLower(collection)]; ok {
			if err := rule(item.Fields); err != nil {
				return Mutation{}, err
			}
		}
		fields := payload(item.Fields)
		fields["createdAt"] = now
		fields["updatedAt"] = now
		return Mutation{Kind: MutationSet, ID: item.ID, Fields: fields}, nil

	case Update:
		fields := payload(a.Fields)
		for k, val := range payload(item.Fields) {
			fields[k] = val
		}
		if len(fields) == 0 {
			return Mutation{}, ErrNoFieldsToUpdate
		}
		fields["updatedAt"] = now
		return Mutation{Kind: MutationUpdate, ID: item.ID, Fields: fields}, nil

	case Delete:
		return Mutation{Kind: MutationDelete, ID: item.ID}, nil

	case Approve:
		return Mutation{Kind: MutationUpdate, ID: item.ID, Fields: map[string]interface{}{
			"status":      "approved",
			"moderatedBy": actor,
			"moderatedAt": now,
			"updatedAt":   now,
		}}, nil

	case Reject:
		return Mutation{Kind: MutationUpdate, ID: item.ID, Fields: map[string]interface{}{
			"status":          "rejected",
			"rejectionReason": a.Reason,
			"moderatedBy":     actor,
			"moderatedAt":     now,
			"updatedAt":       now,
		}}, nil

	case Flag:
		return Mutation{Kind: MutationUpdate, ID: item.ID, Fields: map[string]interface{}{
			"flagged":    true,
			"flagReason": a.Reason,
			"flaggedBy":  actor,
			"flaggedAt":  now,
			"updatedAt":  now,
		}}, nil

	case Unflag:
		return Mutation{Kind: MutationUpdate, ID: item.ID, Fields: map[string]interface{}{
			"flagged":     false,
			"flagReason":  nil,
			"unflaggedBy": actor,
			"unflaggedAt": now,
			"updatedAt":   now,
		}}, nil

	default:
		return Mutation{}, &UnknownActionError{Name: actionName(action)}
	}
}

func actionName(action Action) string {
	if action == nil {
		return ""
	}
	return action.Name()
}

// payload copies fields without identity keys
func payload(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		if k == "id" || k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}

func validateProduct(fields map[string]interface{}) error {
	if stringField(fields, "name") == "" {
		return ErrProductNameRequired
	}
	price, ok := number(fields["price"])
	if !ok || price <= 0 {
		return ErrProductPriceInvalid
	}
	return nil
}

func validateInventory(fields map[string]interface{}) error {
	if stringField(fields, "productId") == "" {
		return ErrProductIDRequired
	}
	if q, ok := fields["quantity"]; !ok || q == nil {
		return ErrQuantityRequired
	}
	return nil
}

func validateCategory(fields map[string]interface{}) error {
	if stringField(fields, "name") == "" {
		return ErrCategoryNameRequired
	}
	return nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
