package repository

import (
	"context"
	"fmt"

	"studyhall/database"
	"studyhall/domain/entities"
)

// SlotRepository implements the SlotRepository interface
type SlotRepository struct {
	q Queryable
}

// NewSlotRepository creates a new slot repository
func NewSlotRepository(db *database.DB) *SlotRepository {
	return &SlotRepository{q: db.Pool}
}

// NewSlotRepositoryWithTx creates a new slot repository with a transaction
func NewSlotRepositoryWithTx(tx Queryable) *SlotRepository {
	return &SlotRepository{q: tx}
}

// EnsureSlots lazily creates rows for the given slot ids
func (r *SlotRepository) EnsureSlots(ctx context.Context, slotIDs ...entities.SlotID) error {
	if len(slotIDs) == 0 {
		return nil
	}

	ids := make([]int64, len(slotIDs))
	for i, id := range slotIDs {
		ids[i] = int64(id)
	}

	query := `
		INSERT INTO schedule_slots (slot_id)
		SELECT UNNEST($1::BIGINT[])
		ON CONFLICT (slot_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to ensure slots %v: %w", slotIDs, err)
	}
	return nil
}
