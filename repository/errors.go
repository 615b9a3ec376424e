package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateBooking is returned when inserting a booking that already
// exists for the same guild, user and slot.
var ErrDuplicateBooking = errors.New("booking already exists")

// ErrInsufficientBalance is returned when a debit would push a wallet
// below zero.
var ErrInsufficientBalance = errors.New("insufficient balance")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
