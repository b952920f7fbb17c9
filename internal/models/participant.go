// Package models provides data models for the airdrop export service.
package models

import (
	"time"

	"github.com/memes-airdrop/internal/types"
	"github.com/shopspring/decimal"
)

// Participant is the off-chain record tracking one wallet through the airdrop gates
type Participant struct {
	ID             int64           `json:"id" db:"id"`
	WalletAddress  string          `json:"walletAddress" db:"wallet_address"`
	Email          string          `json:"email" db:"email"`
	EmailVerified  bool            `json:"emailVerified" db:"email_verified"`
	ReferralCode   string          `json:"referralCode" db:"referral_code"`
	ReferredBy     *string         `json:"referredBy,omitempty" db:"referred_by"`
	GroupJoined    bool            `json:"groupJoined" db:"group_joined"`
	ChannelJoined  bool            `json:"channelJoined" db:"channel_joined"`
	Followed       bool            `json:"followed" db:"followed"`
	Subscribed     bool            `json:"subscribed" db:"subscribed"`
	AirdropTokens  decimal.Decimal `json:"airdropTokens" db:"airdrop_tokens"`
	ReferralTokens decimal.Decimal `json:"referralTokens" db:"referral_tokens"`
	Exported       bool            `json:"exported" db:"exported"`
	Quarantined    bool            `json:"quarantined" db:"quarantined"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	ExportedAt     *time.Time      `json:"exportedAt,omitempty" db:"exported_at"`
}

// TasksCompleted reports whether all four social task flags are set
func (p *Participant) TasksCompleted() bool {
	return p.GroupJoined && p.ChannelJoined && p.Followed && p.Subscribed
}

// EligibleForExport mirrors the selection query in ParticipantRepository.SelectEligible.
// Keep the two in sync.
func (p *Participant) EligibleForExport() bool {
	return p.EmailVerified && p.TasksCompleted() && !p.Exported && !p.Quarantined
}

// TaskDone reports the flag for a single task
func (p *Participant) TaskDone(task types.Task) bool {
	switch task {
	case types.TaskGroup:
		return p.GroupJoined
	case types.TaskChannel:
		return p.ChannelJoined
	case types.TaskFollow:
		return p.Followed
	case types.TaskSubscribe:
		return p.Subscribed
	default:
		return false
	}
}

// ExportCandidate is the slice of a participant the export pipeline needs
type ExportCandidate struct {
	WalletAddress string  `json:"walletAddress"`
	ReferredBy    *string `json:"referredBy,omitempty"`
}

// Candidate projects p onto an ExportCandidate
func (p *Participant) Candidate() ExportCandidate {
	return ExportCandidate{WalletAddress: p.WalletAddress, ReferredBy: p.ReferredBy}
}
