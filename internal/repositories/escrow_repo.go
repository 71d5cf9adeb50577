package repositories

import (
	"context"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
	"github.com/shopspring/decimal"
)

const escrowColumns = `id, trade_id, network_id, onchain_escrow_id, escrow_address,
	       seller_address, buyer_address, arbitrator_address, token_account,
	       amount, current_balance, state, fiat_paid, sequential, sequential_escrow_address,
	       deposit_deadline, fiat_deadline, completed_at, created_at, updated_at`

type EscrowRepo struct {
	q *db.Querier
}

func NewEscrowRepo(q *db.Querier) *EscrowRepo {
	return &EscrowRepo{q: q}
}

// Create inserts the escrow if it is not already known for this network.
// A second EscrowCreated for the same on-chain id is a no-op (false, nil).
func (r *EscrowRepo) Create(ctx context.Context, e *models.Escrow) (bool, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO escrows (trade_id, network_id, onchain_escrow_id, escrow_address,
		                     seller_address, buyer_address, arbitrator_address, token_account,
		                     amount, current_balance, state, fiat_paid, sequential, sequential_escrow_address,
		                     deposit_deadline, fiat_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (network_id, onchain_escrow_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, e.TradeID, e.NetworkID, e.OnchainEscrowID, e.EscrowAddress,
		e.SellerAddress, e.BuyerAddress, e.ArbitratorAddress, e.TokenAccount,
		e.Amount, e.CurrentBalance, e.State, e.FiatPaid, e.Sequential, e.SequentialEscrowAddress,
		e.DepositDeadline, e.FiatDeadline,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *EscrowRepo) GetByID(ctx context.Context, id int64) (*models.Escrow, error) {
	return scanEscrow(r.q.QueryRow(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows WHERE id = $1
	`, id))
}

func (r *EscrowRepo) GetByOnchainID(ctx context.Context, onchainID string, networkID int64) (*models.Escrow, error) {
	return scanEscrow(r.q.QueryRow(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows WHERE onchain_escrow_id = $1 AND network_id = $2
	`, onchainID, networkID))
}

// GetLatestByTradeID is the last-resort lookup when the on-chain id is not in
// the mapping table yet: the most recently created escrow of the trade.
func (r *EscrowRepo) GetLatestByTradeID(ctx context.Context, tradeID int64) (*models.Escrow, error) {
	return scanEscrow(r.q.QueryRow(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows WHERE trade_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tradeID))
}

// MarkFunded moves CREATED -> FUNDED and sets the deposited balance.
func (r *EscrowRepo) MarkFunded(ctx context.Context, id int64, balance decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET state = 'FUNDED', current_balance = $1, updated_at = now()
		WHERE id = $2 AND state = 'CREATED'
	`, balance, id)
	return tag.RowsAffected() > 0, err
}

func (r *EscrowRepo) SetFiatPaid(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET fiat_paid = true, updated_at = now()
		WHERE id = $1 AND state NOT IN ('RELEASED', 'RESOLVED', 'CANCELLED', 'AUTO_CANCELLED')
	`, id)
	return tag.RowsAffected() > 0, err
}

func (r *EscrowRepo) MarkReleased(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET state = 'RELEASED', current_balance = 0, completed_at = now(), updated_at = now()
		WHERE id = $1 AND state NOT IN ('RELEASED', 'RESOLVED', 'CANCELLED', 'AUTO_CANCELLED')
	`, id)
	return tag.RowsAffected() > 0, err
}

// MarkCancelled terminates the escrow as CANCELLED or AUTO_CANCELLED,
// depending on the attribution the caller established.
func (r *EscrowRepo) MarkCancelled(ctx context.Context, id int64, state string) (bool, error) {
	if state != models.EscrowStateCancelled && state != models.EscrowStateAutoCancelled {
		return false, errInvalidCancelState
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET state = $1, current_balance = 0, completed_at = now(), updated_at = now()
		WHERE id = $2 AND state NOT IN ('RELEASED', 'RESOLVED', 'CANCELLED', 'AUTO_CANCELLED')
	`, state, id)
	return tag.RowsAffected() > 0, err
}

func (r *EscrowRepo) MarkDisputed(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET state = 'DISPUTED', updated_at = now()
		WHERE id = $1 AND state IN ('CREATED', 'FUNDED')
	`, id)
	return tag.RowsAffected() > 0, err
}

func (r *EscrowRepo) MarkResolved(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET state = 'RESOLVED', current_balance = 0, completed_at = now(), updated_at = now()
		WHERE id = $1 AND state NOT IN ('RELEASED', 'RESOLVED', 'CANCELLED', 'AUTO_CANCELLED')
	`, id)
	return tag.RowsAffected() > 0, err
}

func (r *EscrowRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE escrows SET current_balance = $1, updated_at = now()
		WHERE id = $2 AND state NOT IN ('RELEASED', 'RESOLVED', 'CANCELLED', 'AUTO_CANCELLED')
	`, balance, id)
	return tag.RowsAffected() > 0, err
}

// scanEscrow maps a missing row to (nil, nil); callers branch on nil
// rather than unwrapping pgx.ErrNoRows everywhere.
func scanEscrow(row rowScanner) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.TradeID, &e.NetworkID, &e.OnchainEscrowID, &e.EscrowAddress,
		&e.SellerAddress, &e.BuyerAddress, &e.ArbitratorAddress, &e.TokenAccount,
		&e.Amount, &e.CurrentBalance, &e.State, &e.FiatPaid, &e.Sequential, &e.SequentialEscrowAddress,
		&e.DepositDeadline, &e.FiatDeadline, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
