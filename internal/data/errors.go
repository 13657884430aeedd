package data

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/target/sessionauth/internal/errors"
)

// ErrDBRequired is returned by constructors when no database handle is supplied.
var ErrDBRequired = errors.New("database handle is required")

// notFoundOr maps pgx.ErrNoRows to notFound and everything else through MapDBError.
func notFoundOr(err, notFound error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
}
