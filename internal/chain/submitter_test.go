package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContract struct {
	mu         sync.Mutex
	transacts  int
	lastMethod string
	lastParams []interface{}
	lastFrom   common.Address
	sendErr    error
	callErr    error
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts++
	f.lastMethod = method
	f.lastParams = params
	f.lastFrom = opts.From
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(f.transacts), Gas: 100000, GasPrice: big.NewInt(1)}), nil
}

func (f *fakeContract) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMethod = method
	f.lastParams = params
	f.lastFrom = opts.From
	return f.callErr
}

func receiptWaiter(status uint64) ReceiptWaiter {
	return func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
		return &ethtypes.Receipt{Status: status, BlockNumber: big.NewInt(42), GasUsed: 90000, TxHash: tx.Hash()}, nil
	}
}

func blockingWaiter(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testKeyHex(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func testBatch() ([]common.Address, []common.Address) {
	users := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	referrers := []common.Address{types.ZeroAddress, users[0]}
	return users, referrers
}

func TestAllowAirdropMethodID(t *testing.T) {
	parsed, err := ParsedAirdropABI()
	require.NoError(t, err)

	method, ok := parsed.Methods[AllowAirdropMethod]
	require.True(t, ok)

	want := crypto.Keccak256([]byte("allowAirdrop(address[],address[])"))[:4]
	assert.Equal(t, want, method.ID)

	users, referrers := testBatch()
	data, err := parsed.Pack(AllowAirdropMethod, users, referrers)
	require.NoError(t, err)
	assert.Equal(t, want, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, users, args[0])
	assert.Equal(t, referrers, args[1])
}

func TestSubmit_Confirmed(t *testing.T) {
	keyHex, sender := testKeyHex(t)
	contract := &fakeContract{}
	s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusSuccessful), SubmitterConfig{
		PrivateKeyHex: keyHex,
		ChainID:       big.NewInt(56),
	})

	users, referrers := testBatch()
	result, err := s.Submit(context.Background(), users, referrers)
	require.NoError(t, err)

	assert.Equal(t, types.BatchStatusConfirmed, result.Status)
	assert.Equal(t, uint64(42), result.BlockNumber)
	assert.Equal(t, uint64(90000), result.GasUsed)
	assert.NotEqual(t, common.Hash{}, result.TxHash)

	assert.Equal(t, AllowAirdropMethod, contract.lastMethod)
	assert.Equal(t, sender, contract.lastFrom)
	require.Len(t, contract.lastParams, 2)
	assert.Equal(t, users, contract.lastParams[0])
	assert.Equal(t, referrers, contract.lastParams[1])
}

func TestSubmit_FailedReceiptIsNotRetried(t *testing.T) {
	keyHex, _ := testKeyHex(t)
	contract := &fakeContract{}
	s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusFailed), SubmitterConfig{
		PrivateKeyHex: keyHex,
		ChainID:       big.NewInt(56),
	})

	users, referrers := testBatch()
	result, err := s.Submit(context.Background(), users, referrers)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategorySubmission))
	require.NotNil(t, result)
	assert.Equal(t, types.BatchStatusFailed, result.Status)
	assert.Equal(t, 1, contract.transacts)
}

func TestSubmit_SendError(t *testing.T) {
	keyHex, _ := testKeyHex(t)
	contract := &fakeContract{sendErr: errors.New("insufficient funds for gas")}
	s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusSuccessful), SubmitterConfig{
		PrivateKeyHex: keyHex,
		ChainID:       big.NewInt(56),
	})

	users, referrers := testBatch()
	result, err := s.Submit(context.Background(), users, referrers)
	assert.Nil(t, result)
	assert.True(t, apperrors.Is(err, apperrors.CategorySubmission))
}

func TestSubmit_ConfirmationTimeout(t *testing.T) {
	keyHex, _ := testKeyHex(t)
	s := newSubmitter(&fakeContract{}, blockingWaiter, SubmitterConfig{
		PrivateKeyHex:  keyHex,
		ChainID:        big.NewInt(56),
		ConfirmTimeout: 20 * time.Millisecond,
	})

	users, referrers := testBatch()
	result, err := s.Submit(context.Background(), users, referrers)
	require.Error(t, err)

	catErr := apperrors.Categorize(err)
	assert.Equal(t, "SUBMISSION_TIMEOUT", catErr.Code)
	require.NotNil(t, result)
	assert.Equal(t, types.BatchStatusTimeout, result.Status)
}

func TestSubmit_ParentCancellationIsNotATimeout(t *testing.T) {
	keyHex, _ := testKeyHex(t)
	s := newSubmitter(&fakeContract{}, blockingWaiter, SubmitterConfig{
		PrivateKeyHex:  keyHex,
		ChainID:        big.NewInt(56),
		ConfirmTimeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	users, referrers := testBatch()
	result, err := s.Submit(ctx, users, referrers)
	require.Error(t, err)
	assert.Equal(t, "SUBMISSION_ERROR", apperrors.Categorize(err).Code)
	assert.Equal(t, types.BatchStatusFailed, result.Status)
}

func TestSubmit_SigningKeyProblemsAreConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "missing", key: ""},
		{name: "whitespace", key: "   "},
		{name: "not hex", key: "0xnot-a-key"},
		{name: "too short", key: "0x1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contract := &fakeContract{}
			s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusSuccessful), SubmitterConfig{
				PrivateKeyHex: tt.key,
				ChainID:       big.NewInt(56),
			})

			users, referrers := testBatch()
			result, err := s.Submit(context.Background(), users, referrers)
			assert.Nil(t, result)
			assert.True(t, apperrors.Is(err, apperrors.CategoryConfiguration), "got %v", err)
			assert.Zero(t, contract.transacts, "no transaction may be sent without a valid key")
		})
	}
}

func TestSubmit_RejectsMalformedBatches(t *testing.T) {
	keyHex, _ := testKeyHex(t)
	contract := &fakeContract{}
	s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusSuccessful), SubmitterConfig{
		PrivateKeyHex: keyHex,
		ChainID:       big.NewInt(56),
	})

	users, referrers := testBatch()

	_, err := s.Submit(context.Background(), nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.CategoryValidation))

	_, err = s.Submit(context.Background(), users, referrers[:1])
	assert.True(t, apperrors.Is(err, apperrors.CategoryValidation))

	assert.Zero(t, contract.transacts)
}

func TestSimulate(t *testing.T) {
	keyHex, sender := testKeyHex(t)
	contract := &fakeContract{}
	s := newSubmitter(contract, receiptWaiter(ethtypes.ReceiptStatusSuccessful), SubmitterConfig{
		PrivateKeyHex: keyHex,
		ChainID:       big.NewInt(56),
	})

	users, referrers := testBatch()
	require.NoError(t, s.Simulate(context.Background(), users[:1], referrers[:1]))
	assert.Equal(t, sender, contract.lastFrom)
	assert.Zero(t, contract.transacts)

	contract.callErr = errors.New("execution reverted: already allowed")
	err := s.Simulate(context.Background(), users[:1], referrers[:1])
	assert.True(t, apperrors.Is(err, apperrors.CategorySubmission))
}
