package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/claims-recal/internal/engine"
)

// ClaimStore loads claim snapshots and weight tables from the
// reporting database.
type ClaimStore struct {
	db *sql.DB
}

// NewClaimStore creates a new claim store
func NewClaimStore(db *sql.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// LoadClaims returns claim snapshots with their feature payloads. A
// limit of 0 loads every settled claim.
func (cs *ClaimStore) LoadClaims(limit int) ([]engine.ClaimRecord, error) {
	query := `
		SELECT claim_id, version, settlement_amount, features
		FROM claim_snapshot
		WHERE settlement_amount IS NOT NULL
		ORDER BY claim_id
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := cs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []engine.ClaimRecord
	for rows.Next() {
		var claim engine.ClaimRecord
		var featuresJSON []byte
		if err := rows.Scan(&claim.ClaimID, &claim.Version, &claim.Settlement, &featuresJSON); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		if len(featuresJSON) > 0 {
			if err := json.Unmarshal(featuresJSON, &claim.Features); err != nil {
				return nil, fmt.Errorf("failed to decode features for claim %s: %w", claim.ClaimID, err)
			}
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// LoadWeightTable returns the factor weight table in display order.
func (cs *ClaimStore) LoadWeightTable() (engine.WeightTable, error) {
	rows, err := cs.db.Query(`
		SELECT factor_name, base_weight, min_weight, max_weight, category
		FROM factor_weight
		ORDER BY display_order, factor_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight table: %w", err)
	}
	defer rows.Close()

	var table engine.WeightTable
	for rows.Next() {
		var e engine.WeightEntry
		if err := rows.Scan(&e.Factor, &e.BaseWeight, &e.MinWeight, &e.MaxWeight, &e.Category); err != nil {
			return nil, fmt.Errorf("failed to scan weight entry: %w", err)
		}
		table = append(table, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("stored weight table is invalid: %w", err)
	}
	return table, nil
}

// SaveWeightTable replaces the stored base weights with the supplied
// table. Bounds and categories are updated in place; unknown factors
// are inserted at the end of the display order.
func (cs *ClaimStore) SaveWeightTable(table engine.WeightTable) error {
	if err := table.Validate(); err != nil {
		return err
	}

	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, e := range table {
		_, err := tx.Exec(`
			INSERT INTO factor_weight (factor_name, base_weight, min_weight, max_weight, category, display_order)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (factor_name) DO UPDATE SET
				base_weight = EXCLUDED.base_weight,
				min_weight = EXCLUDED.min_weight,
				max_weight = EXCLUDED.max_weight,
				category = EXCLUDED.category,
				display_order = EXCLUDED.display_order,
				updated_at = now()
		`, e.Factor, e.BaseWeight, e.MinWeight, e.MaxWeight, e.Category, i)
		if err != nil {
			return fmt.Errorf("failed to upsert weight for %s: %w", e.Factor, err)
		}
	}

	return tx.Commit()
}
