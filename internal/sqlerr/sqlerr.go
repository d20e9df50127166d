// Package sqlerr defines the closed error taxonomy shared by the
// drivers, builders, and session. Every failure the toolkit surfaces is
// an *Error carrying a Kind from this package; callers branch on kinds
// with errors.As and the IsRetryable / IsConnectionError predicates
// instead of string matching.
package sqlerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of failure classes.
type Kind int

const (
	KindUnknown Kind = iota

	// Connection failures.
	ConnConnect
	ConnAuthentication
	ConnDisconnected
	ConnSsl
	ConnDNSResolution
	ConnRefused
	ConnPoolExhausted

	// Query failures.
	QuerySyntax
	QueryConstraint
	QueryNotFound
	QueryPermission
	QueryDataTruncation
	QueryDeadlock
	QuerySerialization
	QueryTimeout
	QueryCancelled
	QueryDatabase

	// Type conversion failure.
	TypeConversion

	// Transaction misuse.
	TxAlreadyCommitted
	TxAlreadyRolledBack
	TxSavepointNotFound
	TxNestedNotSupported

	Protocol
	Pool
	PoolTimeout
	Schema
	Config
	Validation
	IO
	Timeout
	Cancelled
	Serde
	Custom
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	ConnConnect:          "connection",
	ConnAuthentication:   "authentication",
	ConnDisconnected:     "disconnected",
	ConnSsl:              "ssl",
	ConnDNSResolution:    "dns resolution",
	ConnRefused:          "connection refused",
	ConnPoolExhausted:    "pool exhausted",
	QuerySyntax:          "syntax error",
	QueryConstraint:      "constraint violation",
	QueryNotFound:        "not found",
	QueryPermission:      "permission denied",
	QueryDataTruncation:  "data truncation",
	QueryDeadlock:        "deadlock",
	QuerySerialization:   "serialization failure",
	QueryTimeout:         "query timeout",
	QueryCancelled:       "query cancelled",
	QueryDatabase:        "database error",
	TypeConversion:       "type error",
	TxAlreadyCommitted:   "transaction already committed",
	TxAlreadyRolledBack:  "transaction already rolled back",
	TxSavepointNotFound:  "savepoint not found",
	TxNestedNotSupported: "nested transactions not supported",
	Protocol:             "protocol error",
	Pool:                 "pool error",
	PoolTimeout:          "pool timeout",
	Schema:               "schema error",
	Config:               "config error",
	Validation:           "validation error",
	IO:                   "io error",
	Timeout:              "timeout",
	Cancelled:            "cancelled",
	Serde:                "serialization error",
	Custom:               "error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the single concrete error type of the toolkit.
type Error struct {
	Kind    Kind
	Message string

	// Query diagnostics, populated when known.
	SQLState string
	SQL      string
	Detail   string
	Hint     string
	Position int // 1-based byte offset into SQL, 0 when unknown

	// Type-conversion diagnostics.
	Expected string
	Actual   string
	Column   string

	// Field-level validation failures (Kind == Validation).
	Fields []FieldError

	cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Kind == TypeConversion {
		fmt.Fprintf(&b, ": expected %s, got %s", e.Expected, e.Actual)
		if e.Column != "" {
			fmt.Fprintf(&b, " (column %q)", e.Column)
		}
	}
	if e.SQLState != "" {
		fmt.Fprintf(&b, " [SQLSTATE %s]", e.SQLState)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of kind k.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of kind k with cause err.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), cause: err}
}

// TypeError builds the conversion failure mandated for all typed row
// extraction: it always records the expected and actual type names, and
// the column name when the value was extracted by name.
func TypeError(expected, actual, column string) *Error {
	return &Error{Kind: TypeConversion, Expected: expected, Actual: actual, Column: column}
}

// KindOf returns the Kind of err, or KindUnknown when err is not from
// this taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the operation that produced err may be
// retried on a fresh attempt: deadlocks, serialization failures,
// timeouts, and pool exhaustion.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case QueryDeadlock, QuerySerialization, QueryTimeout, Timeout,
		PoolTimeout, ConnPoolExhausted:
		return true
	}
	return false
}

// IsConnectionError reports whether err indicates the physical
// connection is unusable.
func IsConnectionError(err error) bool {
	switch KindOf(err) {
	case ConnConnect, ConnAuthentication, ConnDisconnected, ConnSsl,
		ConnDNSResolution, ConnRefused, Protocol, IO:
		return true
	}
	return false
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field string
	Rule  ValidationRule
	Msg   string
}

// ValidationRule names the constraint a field failed.
type ValidationRule string

const (
	RuleMin         ValidationRule = "min"
	RuleMax         ValidationRule = "max"
	RuleMinLength   ValidationRule = "min_length"
	RuleMaxLength   ValidationRule = "max_length"
	RulePattern     ValidationRule = "pattern"
	RuleRequired    ValidationRule = "required"
	RuleCustom      ValidationRule = "custom"
	RuleModel       ValidationRule = "model"
	RuleMultipleOf  ValidationRule = "multiple_of"
	RuleMinItems    ValidationRule = "min_items"
	RuleMaxItems    ValidationRule = "max_items"
	RuleUniqueItems ValidationRule = "unique_items"
)

// ValidationError aggregates field-level failures into one Error.
func ValidationError(fields []FieldError) *Error {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	return &Error{
		Kind:    Validation,
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}
