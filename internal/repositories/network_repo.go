package repositories

import (
	"context"

	"github.com/escrow-marketplace/backend/internal/db"
	"github.com/escrow-marketplace/backend/internal/models"
)

const networkColumns = `id, name, family, chain_id, rpc_url, ws_url, contract_address, program_id,
	       usdc_mint, arbitrator_address, is_testnet, is_active, created_at, updated_at`

type NetworkRepo struct {
	q *db.Querier
}

func NewNetworkRepo(q *db.Querier) *NetworkRepo {
	return &NetworkRepo{q: q}
}

func (r *NetworkRepo) GetAll(ctx context.Context) ([]models.Network, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+networkColumns+`
		FROM networks
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var networks []models.Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		networks = append(networks, *n)
	}
	return networks, rows.Err()
}

func (r *NetworkRepo) GetByID(ctx context.Context, id int64) (*models.Network, error) {
	return scanNetwork(r.q.QueryRow(ctx, `
		SELECT `+networkColumns+`
		FROM networks WHERE id = $1
	`, id))
}

func (r *NetworkRepo) GetByName(ctx context.Context, name string) (*models.Network, error) {
	return scanNetwork(r.q.QueryRow(ctx, `
		SELECT `+networkColumns+`
		FROM networks WHERE name = $1
	`, name))
}

func scanNetwork(row rowScanner) (*models.Network, error) {
	var n models.Network
	err := row.Scan(&n.ID, &n.Name, &n.Family, &n.ChainID, &n.RPCURL, &n.WSURL, &n.ContractAddress, &n.ProgramID,
		&n.USDCMint, &n.ArbitratorAddress, &n.IsTestnet, &n.IsActive, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
