// Package types provides common type definitions for the airdrop export service.
package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the sentinel used at the contract boundary for "no referrer".
var ZeroAddress = common.Address{}

// Task identifies one of the social task gates a participant must complete
type Task string

const (
	// TaskGroup represents joining the community group
	TaskGroup Task = "group"
	// TaskChannel represents joining the announcement channel
	TaskChannel Task = "channel"
	// TaskFollow represents following the project account
	TaskFollow Task = "follow"
	// TaskSubscribe represents subscribing to the video channel
	TaskSubscribe Task = "subscribe"
)

// AllTasks lists every task gate in a stable order
var AllTasks = []Task{TaskGroup, TaskChannel, TaskFollow, TaskSubscribe}

// Valid reports whether t is a known task
func (t Task) Valid() bool {
	for _, known := range AllTasks {
		if t == known {
			return true
		}
	}
	return false
}

// BatchStatus represents the outcome of one export submission
type BatchStatus string

const (
	// BatchStatusConfirmed represents a mined transaction with a successful receipt
	BatchStatusConfirmed BatchStatus = "confirmed"
	// BatchStatusFailed represents a send error, revert or failed receipt
	BatchStatusFailed BatchStatus = "failed"
	// BatchStatusTimeout represents a confirmation wait that exceeded its deadline
	BatchStatusTimeout BatchStatus = "timeout"
)

// CycleOutcome summarises what a scheduler cycle did
type CycleOutcome string

const (
	// OutcomeIdle means no eligible participants were found
	OutcomeIdle CycleOutcome = "idle"
	// OutcomeExported means a batch was confirmed on chain
	OutcomeExported CycleOutcome = "exported"
	// OutcomeSubmissionFailed means the batch was abandoned unmarked
	OutcomeSubmissionFailed CycleOutcome = "submission_failed"
	// OutcomeConfigError means the cycle aborted before submission
	OutcomeConfigError CycleOutcome = "config_error"
	// OutcomeCircuitOpen means submission was skipped by the breaker
	OutcomeCircuitOpen CycleOutcome = "circuit_open"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NormalizeAddress returns the canonical lowercase form of a hex address.
// The second return value is false when s is not a 20-byte hex address.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), true
}

// IsZeroAddress reports whether addr is the sentinel address
func IsZeroAddress(addr common.Address) bool {
	return addr == ZeroAddress
}
