// Package gmaoerr defines the error taxonomy shared by the GMAO services.
//
// Every typed error unwraps to one category sentinel so callers can branch
// with errors.Is and inspect details with errors.As.
package gmaoerr

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels.
var (
	ErrValidation          = errors.New("validation failed")
	ErrState               = errors.New("invalid state")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrBlockingDependency  = errors.New("blocking dependency")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ValidationError is a generic invalid-input failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FieldTypeMismatchError reports a value that does not fit the check point field type.
type FieldTypeMismatchError struct {
	CheckPointID uint
	FieldType    string
	Value        string
	Reason       string
}

func (e *FieldTypeMismatchError) Error() string {
	return fmt.Sprintf("check point %d expects %s, got %q: %s", e.CheckPointID, e.FieldType, e.Value, e.Reason)
}

func (e *FieldTypeMismatchError) Unwrap() error { return ErrValidation }

// MissingAnswer identifies a required, visible check point without an answer.
type MissingAnswer struct {
	OperationID    uint
	OperationName  string
	CheckPointID   uint
	CheckPointName string
}

func (m MissingAnswer) String() string {
	return m.OperationName + " > " + m.CheckPointName
}

// MissingRequiredAnswersError lists every required visible point left unanswered.
type MissingRequiredAnswersError struct {
	Missing []MissingAnswer
}

func (e *MissingRequiredAnswersError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = m.String()
	}
	return fmt.Sprintf("missing required answers (%d): %s", len(e.Missing), strings.Join(names, ", "))
}

func (e *MissingRequiredAnswersError) Unwrap() error { return ErrValidation }

// CyclicDependencyError is returned when a dependsOn edge would close a cycle.
type CyclicDependencyError struct {
	CheckPointID uint
	DependsOnID  uint
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("check point %d depending on %d would create a cycle", e.CheckPointID, e.DependsOnID)
}

func (e *CyclicDependencyError) Unwrap() error { return ErrValidation }

// HiddenCheckPointError is returned when answering a point whose display condition is not met.
type HiddenCheckPointError struct {
	CheckPointID uint
}

func (e *HiddenCheckPointError) Error() string {
	return fmt.Sprintf("check point %d is not visible for the current answers", e.CheckPointID)
}

func (e *HiddenCheckPointError) Unwrap() error { return ErrValidation }

// MediaRejectedError is returned when an attachment violates the check point media rules.
type MediaRejectedError struct {
	CheckPointID uint
	Kind         string
	Reason       string
}

func (e *MediaRejectedError) Error() string {
	return fmt.Sprintf("media %s rejected for check point %d: %s", e.Kind, e.CheckPointID, e.Reason)
}

func (e *MediaRejectedError) Unwrap() error { return ErrValidation }

// StateError is returned when an operation is not allowed in the entity's current status.
type StateError struct {
	Entity string
	ID     string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s while %s", e.Entity, e.ID, e.Op, e.Status)
}

func (e *StateError) Unwrap() error { return ErrState }

// InvalidState builds a StateError.
func InvalidState(entity, id, status, op string) error {
	return &StateError{Entity: entity, ID: id, Status: status, Op: op}
}

// PermissionDeniedError is returned when an authorization predicate fails.
type PermissionDeniedError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s cannot %s: %s", e.ActorID, e.Action, e.Reason)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// BlockingRepairRequestsError lists the open repair requests preventing closure.
type BlockingRepairRequestsError struct {
	WorkOrderID string
	Numbers     []string
}

func (e *BlockingRepairRequestsError) Error() string {
	return fmt.Sprintf("work order %s has %d blocking repair request(s): %s",
		e.WorkOrderID, len(e.Numbers), strings.Join(e.Numbers, ", "))
}

func (e *BlockingRepairRequestsError) Unwrap() error { return ErrBlockingDependency }

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError is returned when an atomic write lost a race it could not retry.
type ConflictError struct {
	Entity string
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: conflict: %s", e.Entity, e.Key, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }
