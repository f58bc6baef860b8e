package rekey

import (
	"errors"
	"fmt"

	"github.com/contig-rekey/contig-rekey/internal/identity"
	"github.com/contig-rekey/contig-rekey/internal/synonym"
)

// StoreError wraps a failure of the document store. Op names the operation
// that failed (find, cursor, insert, delete).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RecordError attaches the offending record ID to a fatal per-record error.
type RecordError struct {
	RecordID string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Failure kinds reported by FailureKind.
const (
	KindIDMismatch       = "id_mismatch"
	KindUnresolvedContig = "unresolved_contig"
	KindSynonymSource    = "synonym_source"
	KindStore            = "store"
	KindUnknown          = "unknown"
)

// FailureKind classifies a run error. It returns "" for a nil error.
func FailureKind(err error) string {
	var (
		mismatch   *identity.IDMismatchError
		unresolved *synonym.UnresolvedContigError
		sourceErr  *synonym.SourceError
		storeErr   *StoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &mismatch):
		return KindIDMismatch
	case errors.As(err, &unresolved):
		return KindUnresolvedContig
	case errors.As(err, &sourceErr), errors.Is(err, synonym.ErrAssemblyNotFound):
		return KindSynonymSource
	case errors.As(err, &storeErr):
		return KindStore
	default:
		return KindUnknown
	}
}
