package models

import (
	"time"

	"github.com/memes-airdrop/internal/types"
)

// ExportBatch is the audit record of one allowAirdrop submission
type ExportBatch struct {
	CycleID     string            `json:"cycleId" ch:"cycle_id"`
	Size        uint32            `json:"size" ch:"size"`
	Users       []string          `json:"users" ch:"users"`
	Referrers   []string          `json:"referrers" ch:"referrers"`
	TxHash      string            `json:"txHash" ch:"tx_hash"`
	Status      types.BatchStatus `json:"status" ch:"status"`
	BlockNumber uint64            `json:"blockNumber" ch:"block_number"`
	GasUsed     uint64            `json:"gasUsed" ch:"gas_used"`
	Error       string            `json:"error,omitempty" ch:"error"`
	Marked      uint32            `json:"marked" ch:"marked"`
	Quarantined uint32            `json:"quarantined" ch:"quarantined"`
	StartedAt   time.Time         `json:"startedAt" ch:"started_at"`
	FinishedAt  time.Time         `json:"finishedAt" ch:"finished_at"`
}
