package sqlerr

import (
	"errors"
	"strings"
)

// FromSQLState normalizes a vendor SQLSTATE into a taxonomy kind:
//
//	class 08 -> ConnConnect       class 28 -> ConnAuthentication
//	class 23 -> QueryConstraint   class 42 -> QuerySyntax
//	40001    -> QuerySerialization   other 40* -> QueryDeadlock
//	57014    -> QueryCancelled       other 57* -> QueryTimeout
//	anything else -> QueryDatabase
func FromSQLState(code string) Kind {
	if len(code) < 2 {
		return QueryDatabase
	}
	switch code[:2] {
	case "08":
		return ConnConnect
	case "28":
		return ConnAuthentication
	case "23":
		return QueryConstraint
	case "42":
		return QuerySyntax
	case "40":
		if code == "40001" {
			return QuerySerialization
		}
		return QueryDeadlock
	case "57":
		if code == "57014" {
			return QueryCancelled
		}
		return QueryTimeout
	}
	return QueryDatabase
}

// IsUniqueViolation reports whether err is the unique-constraint
// SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	return sqlStateOf(err) == "23505"
}

// IsForeignKeyViolation reports whether err is the foreign-key
// SQLSTATE 23503.
func IsForeignKeyViolation(err error) bool {
	return sqlStateOf(err) == "23503"
}

func sqlStateOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQLState
	}
	return ""
}

// QueryError builds a query-class error from server diagnostics,
// classifying the kind from the SQLSTATE.
func QueryError(sqlstate, message, detail, hint, sql string, position int) *Error {
	return &Error{
		Kind:     FromSQLState(sqlstate),
		Message:  message,
		SQLState: sqlstate,
		SQL:      sql,
		Detail:   detail,
		Hint:     hint,
		Position: position,
	}
}

// Display renders the plain-text fallback form
// "<kind>: <message> [SQLSTATE <code>]".
func Display(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString("error: ")
	b.WriteString(err.Error())
	return b.String()
}
