/*
errors.go - Error taxonomy for the property engine

ERROR CATEGORIES:
  1. Record errors     - malformed records (skip the record, keep sweeping)
  2. Transition errors - illegal status changes (reject, no mutation)
  3. Store errors      - adapter I/O failures (per-record skip or sweep abort)
  4. Dispatch errors   - notification send failures (retry on next run)
  5. Run errors        - concurrency guard

Per-record errors are collected into the sweep report. Only a store failure
that affects a whole scope aborts a run.
*/
package property

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecord is returned when a record is missing a required field
	// or carries a value outside its domain.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the record's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStore is returned when the record store or ledger fails.
	ErrStore = errors.New("store error")

	// ErrDispatch is returned when a notification could not be sent.
	ErrDispatch = errors.New("dispatch failed")

	// ErrRunAlreadyInProgress is returned when a sweep or manual fee run is
	// attempted while another one holds the run lock.
	ErrRunAlreadyInProgress = errors.New("run already in progress")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEpochKey is returned when a ledger entry already exists.
	// Expected on retries; callers treat it as "already sent".
	ErrDuplicateEpochKey = errors.New("duplicate epoch key")

	// ErrBookingOverlap is returned when confirming a booking would double-book a room.
	ErrBookingOverlap = errors.New("booking overlaps an existing reservation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRecordError describes which record and field failed validation.
type InvalidRecordError struct {
	ID       RecordID
	Category Category
	Field    string
	Reason   string
}

func (e *InvalidRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s %s: %s", e.Category, e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s %s", e.Category, e.ID, e.Field, e.Reason)
}

func (e *InvalidRecordError) Unwrap() error { return ErrInvalidRecord }

func invalid(id RecordID, cat Category, field, reason string) *InvalidRecordError {
	return &InvalidRecordError{ID: id, Category: cat, Field: field, Reason: reason}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	ID    RecordID
	From  string
	Event string
	Err   error // underlying fsm error, if any
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s %s from %q", e.Event, e.ID, e.From)
	if e.Err != nil && !errors.Is(e.Err, ErrInvalidTransition) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
func (e *TransitionError) Unwrap() error        { return e.Err }

// StoreError wraps a failure of the record store or ledger.
type StoreError struct {
	Op  string
	ID  RecordID
	Err error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Is(target error) bool { return target == ErrStore }
func (e *StoreError) Unwrap() error        { return e.Err }

// DispatchError wraps a failed notification send.
type DispatchError struct {
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }
func (e *DispatchError) Unwrap() error        { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the same operation may succeed on a later run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDispatch) || errors.Is(err, ErrRunAlreadyInProgress)
}

// IsClientError returns true if the error is due to invalid input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
