package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/types"
)

// airdropContract is the slice of *bind.BoundContract the submitter uses
type airdropContract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// ReceiptWaiter blocks until tx is mined or ctx ends
type ReceiptWaiter func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)

// SubmitterConfig configures the batch submitter
type SubmitterConfig struct {
	// PrivateKeyHex is read on every submission; empty or malformed is a configuration error
	PrivateKeyHex  string
	ChainID        *big.Int
	ConfirmTimeout time.Duration
}

// SubmitResult describes a submitted transaction. It is returned whenever a transaction
// was sent, including when its receipt failed or never arrived.
type SubmitResult struct {
	TxHash      common.Hash
	Status      types.BatchStatus
	BlockNumber uint64
	GasUsed     uint64
}

// Submitter sends allowAirdrop batches and waits for their receipts
type Submitter struct {
	contract       airdropContract
	waitMined      ReceiptWaiter
	keyHex         string
	chainID        *big.Int
	confirmTimeout time.Duration
}

// NewSubmitter binds the airdrop contract at address through client
func NewSubmitter(client *Client, address common.Address, cfg SubmitterConfig) (*Submitter, error) {
	parsed, err := ParsedAirdropABI()
	if err != nil {
		return nil, err
	}

	eth := client.Eth()
	contract := bind.NewBoundContract(address, parsed, eth, eth, eth)
	waiter := func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
		return bind.WaitMined(ctx, eth, tx)
	}

	if cfg.ChainID == nil {
		cfg.ChainID = client.ChainID()
	}
	return newSubmitter(contract, waiter, cfg), nil
}

func newSubmitter(contract airdropContract, waiter ReceiptWaiter, cfg SubmitterConfig) *Submitter {
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Submitter{
		contract:       contract,
		waitMined:      waiter,
		keyHex:         cfg.PrivateKeyHex,
		chainID:        cfg.ChainID,
		confirmTimeout: timeout,
	}
}

// Submit sends one allowAirdrop transaction for the parallel users/referrers arrays and waits
// for a successful receipt. It never retries.
func (s *Submitter) Submit(ctx context.Context, users, referrers []common.Address) (*SubmitResult, error) {
	if err := checkBatch(users, referrers); err != nil {
		return nil, err
	}

	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, s.chainID)
	if err != nil {
		return nil, apperrors.NewConfigurationError("ADMIN_PRIVATE_KEY", err)
	}
	opts.Context = ctx

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"batchSize": len(users),
		"sender":    opts.From.Hex(),
	})

	tx, err := s.contract.Transact(opts, AllowAirdropMethod, users, referrers)
	if err != nil {
		return nil, apperrors.NewSubmissionError("send transaction", err)
	}

	result := &SubmitResult{TxHash: tx.Hash(), Status: types.BatchStatusFailed}
	logger = logger.WithField("txHash", result.TxHash.Hex())
	logger.Info("Submitted allowAirdrop transaction, waiting for receipt")

	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := s.waitMined(waitCtx, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.Status = types.BatchStatusTimeout
			return result, apperrors.NewSubmissionTimeoutError(result.TxHash.Hex(), err)
		}
		return result, apperrors.NewSubmissionError("wait for receipt", err)
	}

	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.GasUsed = receipt.GasUsed

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return result, apperrors.NewSubmissionError("receipt status failed",
			fmt.Errorf("transaction %s reverted in block %d", result.TxHash.Hex(), result.BlockNumber))
	}

	result.Status = types.BatchStatusConfirmed
	logger.WithFields(map[string]interface{}{
		"blockNumber": result.BlockNumber,
		"gasUsed":     result.GasUsed,
	}).Info("allowAirdrop transaction confirmed")

	return result, nil
}

// Simulate dry-runs allowAirdrop with eth_call from the signing account.
// A nil error means the node would accept the call.
func (s *Submitter) Simulate(ctx context.Context, users, referrers []common.Address) error {
	if err := checkBatch(users, referrers); err != nil {
		return err
	}

	key, err := s.signingKey()
	if err != nil {
		return err
	}

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: crypto.PubkeyToAddress(key.PublicKey)}
	if err := s.contract.Call(opts, &out, AllowAirdropMethod, users, referrers); err != nil {
		return apperrors.NewSubmissionError("simulate", err)
	}
	return nil
}

func (s *Submitter) signingKey() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s.keyHex), "0x")
	if raw == "" {
		return nil, apperrors.NewConfigurationError("ADMIN_PRIVATE_KEY", errors.New("signing key not set"))
	}

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		// The parse error never echoes the key material
		return nil, apperrors.NewConfigurationError("ADMIN_PRIVATE_KEY", errors.New("signing key is not a valid secp256k1 hex key"))
	}
	return key, nil
}

func checkBatch(users, referrers []common.Address) error {
	if len(users) == 0 {
		return apperrors.NewInvalidParameterError("users", "batch is empty")
	}
	if len(users) != len(referrers) {
		return apperrors.NewInvalidParameterError("referrers",
			fmt.Sprintf("length %d does not match users length %d", len(referrers), len(users)))
	}
	return nil
}
