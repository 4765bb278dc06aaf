package types

import "time"

// ProofOperation names the mutation a block proof records.
type ProofOperation string

// Proof operation constants
const (
	ProofCreate ProofOperation = "create"
	ProofUpdate ProofOperation = "update"
	ProofDelete ProofOperation = "delete"
)

// IsValid checks if the proof operation value is valid
func (op ProofOperation) IsValid() bool {
	switch op {
	case ProofCreate, ProofUpdate, ProofDelete:
		return true
	}
	return false
}

// BlockProof associates one block mutation with the commit that
// persisted it. Proof rows are append-only and written only by the
// coordinator after a successful commit.
type BlockProof struct {
	BlockID    string         `json:"block_id"`
	Operation  ProofOperation `json:"operation"`
	CommitHash string         `json:"commit_hash"`
	Timestamp  time.Time      `json:"timestamp"`
}
