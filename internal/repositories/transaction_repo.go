package repositories

import (
	"context"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
)

type TransactionRepo struct {
	q *db.Querier
}

func NewTransactionRepo(q *db.Querier) *TransactionRepo {
	return &TransactionRepo{q: q}
}

// Record upserts the ledger row for an observed transaction, keyed by
// (hash, network) on EVM and (signature, network) on Solana. Mutable fields
// take the new value; related ids are first-writer-wins so a PENDING row
// created at intake keeps its linkage when the chain event completes it.
// A PENDING write never downgrades an already final status.
func (r *TransactionRepo) Record(ctx context.Context, t *models.TransactionRecord) (int64, error) {
	if t.TransactionHash == nil && t.Signature == nil {
		return 0, errMissingTxID
	}

	var conflict string
	if t.TransactionHash != nil {
		conflict = `(transaction_hash, network_id) WHERE transaction_hash IS NOT NULL`
	} else {
		conflict = `(signature, network_id) WHERE signature IS NOT NULL`
	}

	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO transactions (transaction_hash, signature, network_id, status, type,
		                          block_number, sender_address, receiver_address,
		                          related_trade_id, related_escrow_db_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT `+conflict+` DO UPDATE SET
			status = CASE WHEN EXCLUDED.status = 'PENDING' AND transactions.status <> 'PENDING'
			              THEN transactions.status ELSE EXCLUDED.status END,
			type = CASE WHEN EXCLUDED.type IN ('EVENT', 'OTHER') AND transactions.type NOT IN ('EVENT', 'OTHER')
			            THEN transactions.type ELSE EXCLUDED.type END,
			block_number = COALESCE(EXCLUDED.block_number, transactions.block_number),
			sender_address = COALESCE(transactions.sender_address, EXCLUDED.sender_address),
			receiver_address = COALESCE(transactions.receiver_address, EXCLUDED.receiver_address),
			related_trade_id = COALESCE(transactions.related_trade_id, EXCLUDED.related_trade_id),
			related_escrow_db_id = COALESCE(transactions.related_escrow_db_id, EXCLUDED.related_escrow_db_id),
			error_message = COALESCE(EXCLUDED.error_message, transactions.error_message),
			updated_at = now()
		RETURNING id
	`, t.TransactionHash, t.Signature, t.NetworkID, t.Status, t.Type,
		t.BlockNumber, t.SenderAddress, t.ReceiverAddress,
		t.RelatedTradeID, t.RelatedEscrowDBID, t.ErrorMessage).Scan(&id)
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// Get looks a transaction up by either chain-native identifier.
func (r *TransactionRepo) Get(ctx context.Context, txID string, networkID int64) (*models.TransactionRecord, error) {
	var t models.TransactionRecord
	err := r.q.QueryRow(ctx, `
		SELECT id, transaction_hash, signature, network_id, status, type,
		       block_number, sender_address, receiver_address,
		       related_trade_id, related_escrow_db_id, error_message, created_at, updated_at
		FROM transactions
		WHERE (transaction_hash = $1 OR signature = $1) AND network_id = $2
	`, txID, networkID).Scan(&t.ID, &t.TransactionHash, &t.Signature, &t.NetworkID, &t.Status, &t.Type,
		&t.BlockNumber, &t.SenderAddress, &t.ReceiverAddress,
		&t.RelatedTradeID, &t.RelatedEscrowDBID, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
