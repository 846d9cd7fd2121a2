package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"shiftboard/store"
)

// Postgres error codes the gateway branches on. Everything else is an
// opaque request failure.
const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeUndefinedTable
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation
}

// classify maps a raw driver error onto the store taxonomy. Unique
// violations carry no domain context here; operations that can race on a
// uniqueness constraint translate them before calling classify.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.NewNotFound(op, "no matching record")
	}
	if isUndefinedTable(err) {
		return store.NewSchemaMissing(op, err)
	}
	if isUniqueViolation(err) {
		return &store.Error{Kind: store.KindConflict, Op: op, Message: "duplicate record", Err: err}
	}
	return store.NewRequestFailed(op, err)
}
