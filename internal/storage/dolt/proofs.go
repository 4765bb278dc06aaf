package dolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cognidao/membank/internal/types"
)

// AppendProof records one block mutation and the commit hash that
// persisted it. Proof rows are never updated or deleted.
func (s *DoltStore) AppendProof(ctx context.Context, proof *types.BlockProof) error {
	if proof == nil {
		return errors.New("proof is nil")
	}
	if proof.BlockID == "" {
		return errors.New("proof block_id is required")
	}
	if !proof.Operation.IsValid() {
		return fmt.Errorf("invalid proof operation %q", proof.Operation)
	}
	if proof.CommitHash == "" {
		return errors.New("proof commit_hash is required")
	}
	ts := proof.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err := s.execContext(ctx, `
		INSERT INTO block_proofs (block_id, operation, commit_hash, timestamp)
		VALUES (?, ?, ?, ?)`,
		proof.BlockID, string(proof.Operation), proof.CommitHash, ts)
	if err != nil {
		return fmt.Errorf("failed to append proof: %w", err)
	}
	return nil
}

// ListProofs returns the proof history for a block, oldest first.
func (s *DoltStore) ListProofs(ctx context.Context, blockID string) ([]*types.BlockProof, error) {
	rows, err := s.queryContext(ctx, `
		SELECT block_id, operation, commit_hash, timestamp
		FROM block_proofs
		WHERE block_id = ?
		ORDER BY id ASC`, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proofs: %w", err)
	}
	defer rows.Close()

	var proofs []*types.BlockProof
	for rows.Next() {
		var (
			p  types.BlockProof
			op string
			ts time.Time
		)
		if err := rows.Scan(&p.BlockID, &op, &p.CommitHash, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan proof: %w", err)
		}
		p.Operation = types.ProofOperation(op)
		p.Timestamp = ts.UTC()
		proofs = append(proofs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return proofs, nil
}
