// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRemoteUnavailable wraps transport failures that never produced an HTTP status.
var ErrRemoteUnavailable = errors.New("remote service unavailable")

// ValidationError reports bad or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing artist, edition, size, product or order.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// RemoteAPIError is a non-2xx answer from the commerce platform or the
// image service.
type RemoteAPIError struct {
	Service string
	Method  string
	Path    string
	Status  int
	Body    string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s %s %s: HTTP %d: %s", e.Service, e.Method, e.Path, e.Status, e.Body)
}

// Retryable reports whether the call may succeed when repeated.
func (e *RemoteAPIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// StorageError wraps an object storage failure.
type StorageError struct {
	Op  string
	Key string
	Err error

	// Missing is set when the object does not exist.
	Missing bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ReferenceResolutionError means a remote option value has no local
// edition or size row with the same display string.
type ReferenceResolutionError struct {
	VariantID int64
	Field     string
	Value     string
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("variant %d: %s %q matches no local reference row", e.VariantID, e.Field, e.Value)
}

// FormatError reports a variant title that does not follow
// "name - type / size / frames".
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed title %q: %s", e.Input, e.Reason)
}

// StepError records which workflow step failed.
type StepError struct {
	Step string
	Err  error

	// RemoteProductID is set when a remote product exists without a local
	// counterpart and the compensating delete failed.
	RemoteProductID int64
	Orphaned        bool
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
	if e.Orphaned {
		msg += fmt.Sprintf(" (remote product %d left without local record)", e.RemoteProductID)
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// AssetFailure is one preview or print asset that could not be produced.
type AssetFailure struct {
	Stage string `json:"stage"`
	Item  string `json:"item"`
	Error string `json:"error"`
}

// AssetFailures collects per-item asset failures.
type AssetFailures struct {
	Failures []AssetFailure
	errs     []error
}

func (e *AssetFailures) Add(stage, item string, err error) {
	e.Failures = append(e.Failures, AssetFailure{Stage: stage, Item: item, Error: err.Error()})
	e.errs = append(e.errs, err)
}

func (e *AssetFailures) Merge(other *AssetFailures) {
	if other == nil {
		return
	}
	e.Failures = append(e.Failures, other.Failures...)
	e.errs = append(e.errs, other.errs...)
}

func (e *AssetFailures) Empty() bool {
	return e == nil || len(e.Failures) == 0
}

// ErrOrNil returns nil when nothing failed.
func (e *AssetFailures) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *AssetFailures) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s %s: %s", f.Stage, f.Item, f.Error))
	}
	return fmt.Sprintf("%d asset(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *AssetFailures) Unwrap() []error {
	return e.errs
}
