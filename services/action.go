package services

import (
	"fmt"
	"strings"

	"bulkjobs/models"
)

// Action is the typed form of a bulk action keyword. The concrete types below
// are the complete set; ParseAction is the only way in from untyped input.
type Action interface {
	Name() string
	OperationType() models.OperationType
	isAction()
}

type (
	Approve struct{}
	Reject  struct{ Reason string }
	Flag    struct{ Reason string }
	Unflag  struct{}
	Update  struct{ Fields map[string]interface{} }
	Delete  struct{}
	Import  struct{ UpdateExisting bool }
)

func (Approve) Name() string { return "approve" }
func (Reject) Name() string  { return "reject" }
func (Flag) Name() string    { return "flag" }
func (Unflag) Name() string  { return "unflag" }
func (Update) Name() string  { return "update" }
func (Delete) Name() string  { return "delete" }
func (Import) Name() string  { return "import" }

func (Approve) OperationType() models.OperationType { return models.OperationCustomAction }
func (Reject) OperationType() models.OperationType  { return models.OperationCustomAction }
func (Flag) OperationType() models.OperationType    { return models.OperationCustomAction }
func (Unflag) OperationType() models.OperationType  { return models.OperationCustomAction }
func (Update) OperationType() models.OperationType  { return models.OperationUpdate }
func (Delete) OperationType() models.OperationType  { return models.OperationDelete }
func (Import) OperationType() models.OperationType  { return models.OperationImport }

func (Approve) isAction() {}
func (Reject) isAction()  {}
func (Flag) isAction()    {}
func (Unflag) isAction()  {}
func (Update) isAction()  {}
func (Delete) isAction()  {}
func (Import) isAction()  {}

// UnknownActionError is returned for an action keyword with no typed form
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return "Unknown action: " + e.Name
}

// ParseAction resolves a keyword plus the request's data and options
func ParseAction(name string, data map[string]interface{}, opts models.BulkOptions) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "approve":
		return Approve{}, nil
	case "reject":
		return Reject{Reason: stringField(data, "reason")}, nil
	case "flag":
		return Flag{Reason: stringField(data, "reason")}, nil
	case "unflag":
		return Unflag{}, nil
	case "update":
		return Update{Fields: data}, nil
	case "delete":
		return Delete{}, nil
	case "import":
		return Import{UpdateExisting: opts.UpdateExisting}, nil
	default:
		return nil, &UnknownActionError{Name: name}
	}
}

// operationTypeOf is used for the job record when the action did not parse
func operationTypeOf(action Action) models.OperationType {
	if action == nil {
		return models.OperationCustomAction
	}
	return action.OperationType()
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
