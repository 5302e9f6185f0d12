// Package kerr defines the typed error kinds returned by every kernel entry
// point. Kernel code never panics on user-triggered input;
// panics are reserved for internal invariant violations that should abort
// the process rather than let the store continue in a state nobody can
// reason about.
package kerr

import (
	"errors"
	"fmt"
)

// Family groups an error kind under one of the five taxonomies: storage,
// graph, vector, BM25, traversal.
type Family string

const (
	FamilyStorage   Family = "StorageError"
	FamilyGraph     Family = "GraphError"
	FamilyVector    Family = "VectorError"
	FamilyBM25      Family = "BM25Error"
	FamilyTraversal Family = "TraversalError"
)

// Kind is one specific error inside a Family.
type Kind string

const (
	// StorageError
	InvalidPath        Kind = "InvalidPath"
	InsufficientSpace  Kind = "InsufficientSpace"
	InvalidKey         Kind = "InvalidKey"
	InvalidEncoding    Kind = "InvalidEncoding"
	TransactionAborted Kind = "TransactionAborted"

	// GraphError
	NotFound        Kind = "NotFound"
	SchemaViolation Kind = "SchemaViolation"
	UniqueViolation Kind = "UniqueViolation"
	DanglingEdge    Kind = "DanglingEdge"

	// VectorError
	DimensionMismatch Kind = "DimensionMismatch"
	InvalidVectorData Kind = "InvalidVectorData"
	EmptyIndex        Kind = "EmptyIndex"
	DeletedVector     Kind = "DeletedVector"

	// BM25Error
	EmptyQuery       Kind = "EmptyQuery"
	CapacityExceeded Kind = "CapacityExceeded"

	// TraversalError
	MaxDepthExceeded Kind = "MaxDepthExceeded"
	InvalidWeight    Kind = "InvalidWeight"
	TypeMismatch     Kind = "TypeMismatch"
	UnsupportedStep  Kind = "UnsupportedStep"
)

var familyOf = map[Kind]Family{
	InvalidPath: FamilyStorage, InsufficientSpace: FamilyStorage,
	InvalidKey: FamilyStorage, InvalidEncoding: FamilyStorage, TransactionAborted: FamilyStorage,

	NotFound: FamilyGraph, SchemaViolation: FamilyGraph,
	UniqueViolation: FamilyGraph, DanglingEdge: FamilyGraph,

	DimensionMismatch: FamilyVector, InvalidVectorData: FamilyVector,
	EmptyIndex: FamilyVector, DeletedVector: FamilyVector,

	EmptyQuery: FamilyBM25, CapacityExceeded: FamilyBM25,

	MaxDepthExceeded: FamilyTraversal, InvalidWeight: FamilyTraversal,
	TypeMismatch: FamilyTraversal, UnsupportedStep: FamilyTraversal,
}

// Error is the tagged outcome every kernel entry point returns on failure.
type Error struct {
	Family  Family
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s.%s: %s", e.Family, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s.%s", e.Family, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged Error for kind, looking up its family.
func New(kind Kind, message string) *Error {
	return &Error{Family: familyOf[kind], Kind: kind, Message: message}
}

// Wrap constructs a tagged Error that also carries an underlying cause,
// preserved for errors.Is/errors.As and %w-style logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Family: familyOf[kind], Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a kerr.Error of the given kind. Handlers use
// this to translate a kernel outcome into the {code, message} envelope
// handed back to the gateway.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
