package repositories

import (
	"context"
	"encoding/json"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
)

// EventRepo archives decoded events before reconciliation touches anything.
type EventRepo struct {
	q *db.Querier
}

func NewEventRepo(q *db.Querier) *EventRepo {
	return &EventRepo{q: q}
}

// Insert stores the event once; replays of the same event are no-ops.
func (r *EventRepo) Insert(ctx context.Context, e *models.ContractEvent) (bool, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return false, err
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO contract_events (network_id, event_name, tx_id, block_number, payload, degraded)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (network_id, tx_id, event_name, block_number) DO NOTHING
	`, e.NetworkID, e.EventName, e.TxID, e.BlockNumber, payload, e.Degraded)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByTxID returns the archived events of one transaction, oldest first.
func (r *EventRepo) ListByTxID(ctx context.Context, txID string, networkID int64) ([]models.ContractEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, network_id, event_name, tx_id, block_number, payload, degraded, created_at
		FROM contract_events
		WHERE tx_id = $1 AND network_id = $2
		ORDER BY id
	`, txID, networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ContractEvent
	for rows.Next() {
		var e models.ContractEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.NetworkID, &e.EventName, &e.TxID, &e.BlockNumber, &payload, &e.Degraded, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
