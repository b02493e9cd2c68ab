package patient

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is reported when a lookup or update matches no row.
var ErrNotFound = errors.New("no rows returned by a query that expected to return at least one row")

// ErrBMIOutOfRange is reported when weight and height give a BMI that is not
// a finite number.
var ErrBMIOutOfRange = errors.New("bmi out of range")

// DbError is the single error kind surfaced by patient operations. It carries
// the underlying driver error and serializes as {"DbError": "<message>"}.
type DbError struct {
	Err error
}

func (e *DbError) Error() string { return e.Err.Error() }

func (e *DbError) Unwrap() error { return e.Err }

func (e *DbError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"DbError": e.Error()})
}

// wrapDB converts a repository error into a DbError, folding the drivers'
// no-rows errors into ErrNotFound.
func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		err = ErrNotFound
	}
	return &DbError{Err: err}
}
