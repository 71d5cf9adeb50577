package repositories

import (
	"context"

	"github.com/escrow-marketplace/backend/internal/db"
)

// MappingRepo maintains the blockchain-id -> database-id index for escrows.
// The chain-native counter and the database primary key are independent
// sequences; this table makes the translation a single lookup.
type MappingRepo struct {
	q *db.Querier
}

func NewMappingRepo(q *db.Querier) *MappingRepo {
	return &MappingRepo{q: q}
}

// Get returns the mapped database id, or (0, nil) when no mapping exists yet.
func (r *MappingRepo) Get(ctx context.Context, blockchainID string, networkID int64) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		SELECT escrow_db_id FROM escrow_id_mapping
		WHERE blockchain_id = $1 AND network_id = $2
	`, blockchainID, networkID).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

func (r *MappingRepo) Upsert(ctx context.Context, blockchainID string, networkID, escrowDBID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO escrow_id_mapping (blockchain_id, network_id, escrow_db_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (blockchain_id, network_id) DO UPDATE SET escrow_db_id = EXCLUDED.escrow_db_id
	`, blockchainID, networkID, escrowDBID)
	return err
}
