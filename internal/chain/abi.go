// Package chain talks to the airdrop contract: endpoint failover, dialing, signing and receipts.
package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// AllowAirdropMethod is the contract method that registers a batch of users with their referrers
const AllowAirdropMethod = "allowAirdrop"

// AirdropABI is the subset of the airdrop contract ABI the exporter calls
const AirdropABI = `[
	{
		"type": "function",
		"name": "allowAirdrop",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "users", "type": "address[]", "internalType": "address[]"},
			{"name": "referrers", "type": "address[]", "internalType": "address[]"}
		],
		"outputs": []
	}
]`

var (
	parsedABI     abi.ABI
	parsedABIErr  error
	parsedABIOnce sync.Once
)

// ParsedAirdropABI returns the parsed contract ABI
func ParsedAirdropABI() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(AirdropABI))
		if parsedABIErr != nil {
			parsedABIErr = fmt.Errorf("failed to parse airdrop ABI: %w", parsedABIErr)
		}
	})
	return parsedABI, parsedABIErr
}
