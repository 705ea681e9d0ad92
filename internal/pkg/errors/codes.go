package errors

import (
	"fmt"
	"net/http"
)

// Store error codes.
const (
	CodeStoreNotFound        = "STORE_NOT_FOUND"
	CodeStoreSlugConflict    = "STORE_SLUG_CONFLICT"
	CodeStoreLimitReached    = "STORE_LIMIT_REACHED"
	CodeStoreInvalidState    = "STORE_INVALID_STATE"
	CodeStoreAlreadyDeleting = "STORE_ALREADY_DELETING"
	CodeUnknownPlan          = "UNKNOWN_PLAN"
)

// Cluster error codes.
const (
	CodePodNotFound      = "POD_NOT_FOUND"
	CodeClusterUnhealthy = "CLUSTER_UNHEALTHY"
)

// Generic error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
)

// ErrStoreNotFound creates a store not found error.
func ErrStoreNotFound(storeID string) *AppError {
	return NotFound(CodeStoreNotFound, "Store not found").
		WithParams(map[string]any{"store_id": storeID})
}

// ErrSlugConflict reports that another store already owns the slug.
func ErrSlugConflict(slug string) *AppError {
	return Conflict(CodeStoreSlugConflict,
		fmt.Sprintf("A store with slug %q already exists", slug)).
		WithParams(map[string]any{"slug": slug})
}

// ErrStoreLimitReached reports that the platform-wide store cap is reached.
func ErrStoreLimitReached(max int) *AppError {
	return New(CodeStoreLimitReached,
		fmt.Sprintf("Maximum number of stores (%d) reached", max),
		http.StatusTooManyRequests).
		WithParams(map[string]any{"max_stores": max})
}

// ErrInvalidState reports that the requested action is not allowed in the
// store's current status.
func ErrInvalidState(status, action string) *AppError {
	return Conflict(CodeStoreInvalidState,
		fmt.Sprintf("Cannot %s a store in status %q", action, status)).
		WithParams(map[string]any{"status": status, "action": action})
}

// ErrAlreadyDeleting reports a second delete request for the same store.
func ErrAlreadyDeleting(storeID string) *AppError {
	return Conflict(CodeStoreAlreadyDeleting, "Store is already being deleted").
		WithParams(map[string]any{"store_id": storeID})
}

// ErrUnknownPlan reports a plan with no registered pipeline.
func ErrUnknownPlan(plan string) *AppError {
	return BadRequest(CodeUnknownPlan, fmt.Sprintf("Unknown plan %q", plan)).
		WithParams(map[string]any{"plan": plan})
}

// ErrValidation creates a 400 validation error carrying field details.
func ErrValidation(fields []FieldError) *AppError {
	return BadRequest(CodeValidationFailed, "Request validation failed").
		WithFieldErrors(fields)
}
