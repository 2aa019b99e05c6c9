package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"cogmanager/internal/streak"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller.
var ErrNotFound = errors.New("not found")

// dateParam encodes the calendar day of t (in t's location) as a DATE.
func dateParam(t time.Time) pgtype.Date {
	return pgtype.Date{Time: streak.Date(t), Valid: true}
}
