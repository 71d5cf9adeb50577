package repositories

import (
	"context"
	"time"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
)

type TradeRepo struct {
	q *db.Querier
}

func NewTradeRepo(q *db.Querier) *TradeRepo {
	return &TradeRepo{q: q}
}

func (r *TradeRepo) GetByID(ctx context.Context, id int64) (*models.Trade, error) {
	var t models.Trade
	err := r.q.QueryRow(ctx, `
		SELECT id, overall_status, fiat_currency, created_at, updated_at,
		       leg1_state, leg1_escrow_onchain_id, leg1_network_id, leg1_deposit_deadline, leg1_fiat_deadline,
		       leg2_state, leg2_escrow_onchain_id, leg2_network_id, leg2_deposit_deadline, leg2_fiat_deadline
		FROM trades WHERE id = $1
	`, id).Scan(&t.ID, &t.OverallStatus, &t.FiatCurrency, &t.CreatedAt, &t.UpdatedAt,
		&t.Leg1State, &t.Leg1EscrowOnchainID, &t.Leg1NetworkID, &t.Leg1DepositDeadline, &t.Leg1FiatDeadline,
		&t.Leg2State, &t.Leg2EscrowOnchainID, &t.Leg2NetworkID, &t.Leg2DepositDeadline, &t.Leg2FiatDeadline)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// AssignLegEscrow binds a freshly created escrow to the first unbound leg and
// stamps its deadlines. Returns the leg number, or 0 when both legs are taken.
func (r *TradeRepo) AssignLegEscrow(ctx context.Context, tradeID int64, onchainID string, networkID int64, depositDeadline, fiatDeadline *time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE trades SET leg1_escrow_onchain_id = $1, leg1_network_id = $2,
		                  leg1_deposit_deadline = COALESCE($3, leg1_deposit_deadline),
		                  leg1_fiat_deadline = COALESCE($4, leg1_fiat_deadline),
		                  updated_at = now()
		WHERE id = $5 AND leg1_escrow_onchain_id IS NULL
	`, onchainID, networkID, depositDeadline, fiatDeadline, tradeID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		return 1, nil
	}

	tag, err = r.q.Exec(ctx, `
		UPDATE trades SET leg2_escrow_onchain_id = $1, leg2_network_id = $2,
		                  leg2_deposit_deadline = COALESCE($3, leg2_deposit_deadline),
		                  leg2_fiat_deadline = COALESCE($4, leg2_fiat_deadline),
		                  updated_at = now()
		WHERE id = $5 AND leg2_state IS NOT NULL AND leg2_escrow_onchain_id IS NULL
	`, onchainID, networkID, depositDeadline, fiatDeadline, tradeID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		return 2, nil
	}
	return 0, nil
}

// LegForEscrow returns which leg of the trade references the given escrow,
// or 0 when neither does or the trade row is missing.
func (r *TradeRepo) LegForEscrow(ctx context.Context, tradeID int64, onchainID string, networkID int64) (int, error) {
	var leg int
	err := r.q.QueryRow(ctx, `
		SELECT CASE
			WHEN leg1_escrow_onchain_id = $2 AND leg1_network_id = $3 THEN 1
			WHEN leg2_escrow_onchain_id = $2 AND leg2_network_id = $3 THEN 2
			ELSE 0
		END
		FROM trades WHERE id = $1
	`, tradeID, onchainID, networkID).Scan(&leg)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return leg, nil
}

// AdvanceLeg moves one leg's state forward, guarded by the allowed source
// states. Returns false when the row was in none of them (stale or replayed
// event), which callers treat as a no-op.
func (r *TradeRepo) AdvanceLeg(ctx context.Context, tradeID int64, leg int, to string, allowedFrom []string) (bool, error) {
	var sql string
	switch leg {
	case 1:
		sql = `UPDATE trades SET leg1_state = $1, updated_at = now() WHERE id = $2 AND leg1_state = ANY($3)`
	case 2:
		sql = `UPDATE trades SET leg2_state = $1, updated_at = now() WHERE id = $2 AND leg2_state = ANY($3)`
	default:
		return false, errUnknownLeg
	}
	tag, err := r.q.Exec(ctx, sql, to, tradeID, allowedFrom)
	return tag.RowsAffected() > 0, err
}

// DisputeLegs pushes every non-terminal leg to DISPUTED and the trade to
// DISPUTED overall.
func (r *TradeRepo) DisputeLegs(ctx context.Context, tradeID int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE trades SET
			leg1_state = CASE WHEN leg1_state IN ('CREATED', 'FUNDED', 'FIAT_PAID') THEN 'DISPUTED' ELSE leg1_state END,
			leg2_state = CASE WHEN leg2_state IN ('CREATED', 'FUNDED', 'FIAT_PAID') THEN 'DISPUTED' ELSE leg2_state END,
			overall_status = 'DISPUTED',
			updated_at = now()
		WHERE id = $1 AND overall_status = 'IN_PROGRESS'
	`, tradeID)
	return tag.RowsAffected() > 0, err
}

func (r *TradeRepo) SetOverall(ctx context.Context, tradeID int64, to string, allowedFrom []string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE trades SET overall_status = $1, updated_at = now()
		WHERE id = $2 AND overall_status = ANY($3)
	`, to, tradeID, allowedFrom)
	return tag.RowsAffected() > 0, err
}

// FindDeadlineExpired returns legs eligible for auto-cancellation as of now:
// trade still IN_PROGRESS, escrow bound, and either the deposit deadline
// passed while waiting for funding or the fiat deadline passed while funded.
// Legs already fiat-paid, disputed or terminal are excluded by construction.
func (r *TradeRepo) FindDeadlineExpired(ctx context.Context, now time.Time) ([]models.TradeLeg, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, 1 AS leg, leg1_state, leg1_escrow_onchain_id, leg1_network_id, leg1_deposit_deadline, leg1_fiat_deadline
		FROM trades
		WHERE overall_status = 'IN_PROGRESS'
		  AND leg1_escrow_onchain_id IS NOT NULL
		  AND ((leg1_state = 'CREATED' AND leg1_deposit_deadline < $1)
		    OR (leg1_state = 'FUNDED' AND leg1_fiat_deadline < $1))
		UNION ALL
		SELECT id, 2, leg2_state, leg2_escrow_onchain_id, leg2_network_id, leg2_deposit_deadline, leg2_fiat_deadline
		FROM trades
		WHERE overall_status = 'IN_PROGRESS'
		  AND leg2_escrow_onchain_id IS NOT NULL
		  AND ((leg2_state = 'CREATED' AND leg2_deposit_deadline < $1)
		    OR (leg2_state = 'FUNDED' AND leg2_fiat_deadline < $1))
		ORDER BY id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []models.TradeLeg
	for rows.Next() {
		var l models.TradeLeg
		if err := rows.Scan(&l.TradeID, &l.Leg, &l.State, &l.EscrowOnchainID, &l.NetworkID, &l.DepositDeadline, &l.FiatDeadline); err != nil {
			return nil, err
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}
