package repository

import (
	"context"
	"fmt"

	"studyhall/database"
	"studyhall/domain/entities"

	"github.com/jackc/pgx/v5"
)

// BookingRepository implements the BookingRepository interface
type BookingRepository struct {
	q Queryable
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{q: db.Pool}
}

// NewBookingRepositoryWithTx creates a new booking repository with a transaction
func NewBookingRepositoryWithTx(tx Queryable) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `guild_id, user_id, slot_id, booked_at, attended, clock_seconds, book_transaction_id, reward_transaction_id`

func scanBooking(row pgx.Row) (*entities.Booking, error) {
	var booking entities.Booking
	err := row.Scan(
		&booking.GuildID,
		&booking.UserID,
		&booking.SlotID,
		&booking.BookedAt,
		&booking.Attended,
		&booking.ClockSeconds,
		&booking.BookTransactionID,
		&booking.RewardTransactionID,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Create inserts booking rows, rejecting duplicates
func (r *BookingRepository) Create(ctx context.Context, bookings ...*entities.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	guildIDs := make([]int64, len(bookings))
	userIDs := make([]int64, len(bookings))
	slotIDs := make([]int64, len(bookings))
	txIDs := make([]*int64, len(bookings))
	for i, b := range bookings {
		guildIDs[i] = b.GuildID
		userIDs[i] = b.UserID
		slotIDs[i] = int64(b.SlotID)
		txIDs[i] = b.BookTransactionID
	}

	query := `
		INSERT INTO schedule_bookings (guild_id, user_id, slot_id, book_transaction_id)
		SELECT * FROM UNNEST($1::BIGINT[], $2::BIGINT[], $3::BIGINT[], $4::BIGINT[])
		RETURNING booked_at
	`

	rows, err := r.q.Query(ctx, query, guildIDs, userIDs, slotIDs, txIDs)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("failed to create %d bookings: %w", len(bookings), err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if err := rows.Scan(&bookings[i].BookedAt); err != nil {
			return fmt.Errorf("failed to scan booking timestamp: %w", err)
		}
		i++
	}
	if err := rows.Err(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("failed to create %d bookings: %w", len(bookings), err)
	}
	return nil
}

// Get fetches a booking, returning nil if it does not exist
func (r *BookingRepository) Get(ctx context.Context, key entities.BookingKey) (*entities.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM schedule_bookings
		WHERE guild_id = $1 AND user_id = $2 AND slot_id = $3
	`

	booking, err := scanBooking(r.q.QueryRow(ctx, query, key.GuildID, key.UserID, int64(key.SlotID)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking for user %d in guild %d slot %d: %w", key.UserID, key.GuildID, key.SlotID, err)
	}
	return booking, nil
}

// ListBySession returns all bookings for one guild's slot
func (r *BookingRepository) ListBySession(ctx context.Context, guildID int64, slotID entities.SlotID) ([]*entities.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM schedule_bookings
		WHERE guild_id = $1 AND slot_id = $2
		ORDER BY booked_at
	`

	return r.listBookings(ctx, query, guildID, int64(slotID))
}

// ListFutureByUser returns a member's bookings for slots after the given slot
func (r *BookingRepository) ListFutureByUser(ctx context.Context, guildID, userID int64, after entities.SlotID) ([]*entities.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM schedule_bookings
		WHERE guild_id = $1 AND user_id = $2 AND slot_id > $3
		ORDER BY slot_id
	`

	return r.listBookings(ctx, query, guildID, userID, int64(after))
}

// ListFutureByGuild returns all of a guild's bookings after the given slot
func (r *BookingRepository) ListFutureByGuild(ctx context.Context, guildID int64, after entities.SlotID) ([]*entities.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM schedule_bookings
		WHERE guild_id = $1 AND slot_id > $2
		ORDER BY slot_id, user_id
	`

	return r.listBookings(ctx, query, guildID, int64(after))
}

func (r *BookingRepository) listBookings(ctx context.Context, query string, args ...any) ([]*entities.Booking, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entities.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// CountMisses returns how many of a member's bookings since the given
// slot were settled as not attended
func (r *BookingRepository) CountMisses(ctx context.Context, guildID, userID int64, since entities.SlotID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM schedule_bookings
		WHERE guild_id = $1 AND user_id = $2 AND slot_id >= $3 AND attended = FALSE
	`

	var count int
	if err := r.q.QueryRow(ctx, query, guildID, userID, int64(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count misses for user %d in guild %d: %w", userID, guildID, err)
	}
	return count, nil
}

// Delete removes booking rows, returning the rows that existed
func (r *BookingRepository) Delete(ctx context.Context, keys ...entities.BookingKey) ([]*entities.Booking, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	guildIDs := make([]int64, len(keys))
	userIDs := make([]int64, len(keys))
	slotIDs := make([]int64, len(keys))
	for i, key := range keys {
		guildIDs[i] = key.GuildID
		userIDs[i] = key.UserID
		slotIDs[i] = int64(key.SlotID)
	}

	query := `
		DELETE FROM schedule_bookings b
		USING UNNEST($1::BIGINT[], $2::BIGINT[], $3::BIGINT[]) AS t(guild_id, user_id, slot_id)
		WHERE b.guild_id = t.guild_id
		  AND b.user_id = t.user_id
		  AND b.slot_id = t.slot_id
		RETURNING ` + bookingColumnsPrefixed("b") + `
	`

	rows, err := r.q.Query(ctx, query, guildIDs, userIDs, slotIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %d bookings: %w", len(keys), err)
	}
	defer rows.Close()

	var deleted []*entities.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted booking: %w", err)
		}
		deleted = append(deleted, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deleted bookings: %w", err)
	}
	return deleted, nil
}

// SettleOutcomes bulk-updates attendance results in one statement. The
// UNNEST join applies all (key, outcome) tuples at once instead of a
// statement per booking.
func (r *BookingRepository) SettleOutcomes(ctx context.Context, outcomes ...*entities.BookingOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	guildIDs := make([]int64, len(outcomes))
	userIDs := make([]int64, len(outcomes))
	slotIDs := make([]int64, len(outcomes))
	attended := make([]bool, len(outcomes))
	clocks := make([]int64, len(outcomes))
	rewardIDs := make([]*int64, len(outcomes))
	for i, o := range outcomes {
		guildIDs[i] = o.GuildID
		userIDs[i] = o.UserID
		slotIDs[i] = int64(o.SlotID)
		attended[i] = o.Attended
		clocks[i] = o.ClockSeconds
		rewardIDs[i] = o.RewardTransactionID
	}

	query := `
		UPDATE schedule_bookings b
		SET attended = t.attended,
		    clock_seconds = t.clock_seconds,
		    reward_transaction_id = COALESCE(b.reward_transaction_id, t.reward_transaction_id)
		FROM UNNEST(
			$1::BIGINT[], $2::BIGINT[], $3::BIGINT[],
			$4::BOOLEAN[], $5::BIGINT[], $6::BIGINT[]
		) AS t(guild_id, user_id, slot_id, attended, clock_seconds, reward_transaction_id)
		WHERE b.guild_id = t.guild_id
		  AND b.user_id = t.user_id
		  AND b.slot_id = t.slot_id
	`

	if _, err := r.q.Exec(ctx, query, guildIDs, userIDs, slotIDs, attended, clocks, rewardIDs); err != nil {
		return fmt.Errorf("failed to settle %d bookings: %w", len(outcomes), err)
	}
	return nil
}

func bookingColumnsPrefixed(alias string) string {
	return alias + ".guild_id, " + alias + ".user_id, " + alias + ".slot_id, " +
		alias + ".booked_at, " + alias + ".attended, " + alias + ".clock_seconds, " +
		alias + ".book_transaction_id, " + alias + ".reward_transaction_id"
}
