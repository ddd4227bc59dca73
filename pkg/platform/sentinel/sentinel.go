package sentinel

import (
	"errors"
	"fmt"
)

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: an insert-if-absent write found an existing record
// - ErrInvalidState: conditional write rejected because the entity is in the wrong state
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)

// Names of the storage failures that are worth retrying. Adapters normalize
// their driver-specific codes onto this fixed set.
const (
	TransientThroughputExceeded = "ThroughputExceeded"
	TransientThrottling         = "Throttling"
	TransientServiceUnavailable = "ServiceUnavailable"
	TransientInternalError      = "InternalError"
	TransientTimeout            = "Timeout"
)

var transientNames = map[string]struct{}{
	TransientThroughputExceeded: {},
	TransientThrottling:         {},
	TransientServiceUnavailable: {},
	TransientInternalError:      {},
	TransientTimeout:            {},
}

// TransientError is a storage failure carrying a normalized name.
type TransientError struct {
	Name string
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient storage error %s: %v", e.Name, e.Err)
	}
	return "transient storage error " + e.Name
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err under one of the transient names.
func Transient(name string, err error) error {
	return &TransientError{Name: name, Err: err}
}

// IsTransient reports whether err carries a name from the retryable set.
func IsTransient(err error) bool {
	var te *TransientError
	if !errors.As(err, &te) {
		return false
	}
	_, ok := transientNames[te.Name]
	return ok
}
