package repositories

import (
	"context"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
)

const autoCancelColumns = `id, escrow_db_id, network_id, status, transaction_hash, error_message, created_at, updated_at`

type AutoCancelRepo struct {
	q *db.Querier
}

func NewAutoCancelRepo(q *db.Querier) *AutoCancelRepo {
	return &AutoCancelRepo{q: q}
}

func (r *AutoCancelRepo) Create(ctx context.Context, escrowDBID, networkID int64) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO contract_auto_cancellations (escrow_db_id, network_id, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING id
	`, escrowDBID, networkID).Scan(&id)
	return id, err
}

func (r *AutoCancelRepo) MarkSuccess(ctx context.Context, id int64, txHash string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE contract_auto_cancellations SET status = 'SUCCESS', transaction_hash = $1, updated_at = now()
		WHERE id = $2
	`, txHash, id)
	return err
}

func (r *AutoCancelRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE contract_auto_cancellations SET status = 'FAILED', error_message = $1, updated_at = now()
		WHERE id = $2
	`, errMsg, id)
	return err
}

func (r *AutoCancelRepo) MarkBalanceCheck(ctx context.Context, id int64, note string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE contract_auto_cancellations SET status = 'BALANCE_CHECK', error_message = $1, updated_at = now()
		WHERE id = $2
	`, note, id)
	return err
}

// FindMatch returns the attempt an EscrowCancelled event should attribute to:
// a row already carrying this transaction hash, else the newest PENDING or
// SUCCESS attempt for the escrow. Nil when nothing matches.
func (r *AutoCancelRepo) FindMatch(ctx context.Context, escrowDBID int64, txHash string) (*models.ContractAutoCancellation, error) {
	row, err := scanAutoCancel(r.q.QueryRow(ctx, `
		SELECT `+autoCancelColumns+`
		FROM contract_auto_cancellations
		WHERE escrow_db_id = $1 AND (transaction_hash = $2 OR status IN ('PENDING', 'SUCCESS'))
		ORDER BY (transaction_hash = $2) DESC, created_at DESC
		LIMIT 1
	`, escrowDBID, txHash))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

// LinkRetroactive records a SUCCESS attempt after the fact, used when a
// cancellation signed by the arbitrator shows up without a prior attempt row.
func (r *AutoCancelRepo) LinkRetroactive(ctx context.Context, escrowDBID, networkID int64, txHash string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO contract_auto_cancellations (escrow_db_id, network_id, status, transaction_hash)
		VALUES ($1, $2, 'SUCCESS', $3)
		RETURNING id
	`, escrowDBID, networkID, txHash).Scan(&id)
	return id, err
}

func scanAutoCancel(row rowScanner) (*models.ContractAutoCancellation, error) {
	var c models.ContractAutoCancellation
	err := row.Scan(&c.ID, &c.EscrowDBID, &c.NetworkID, &c.Status, &c.TransactionHash, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
