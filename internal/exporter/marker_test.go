package exporter

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMarker_ContinuesPastFailures(t *testing.T) {
	store := newMemStore()
	for i := 1; i <= 3; i++ {
		store.add(eligible(i, nil))
	}
	store.markErr[wallet(2)] = errors.New("statement timeout")

	result := NewMarker(store, nil).Mark(context.Background(), []string{wallet(1), wallet(2), wallet(3)})

	assert.Equal(t, []string{wallet(1), wallet(3)}, result.Marked)
	assert.Equal(t, []string{wallet(2)}, result.Failed)
	assert.Equal(t, 3, store.markCalls, "each wallet is attempted exactly once")
}

func TestMarker_AlreadyExported(t *testing.T) {
	store := newMemStore()
	p := eligible(1, nil)
	p.Exported = true
	store.add(p)

	result := NewMarker(store, nil).Mark(context.Background(), []string{wallet(1)})

	assert.Empty(t, result.Marked)
	assert.Equal(t, []string{wallet(1)}, result.AlreadyExported)
}

func TestSelector_SkipsMalformedWalletsAndNormalizes(t *testing.T) {
	store := newMemStore()
	store.participants = []*models.Participant{
		{ID: 1, WalletAddress: "0xABCDEF0000000000000000000000000000000001", EmailVerified: true, GroupJoined: true, ChannelJoined: true, Followed: true, Subscribed: true},
		{ID: 2, WalletAddress: "garbage", EmailVerified: true, GroupJoined: true, ChannelJoined: true, Followed: true, Subscribed: true},
	}

	got := NewSelector(store).Select(context.Background(), 10)

	assert.Len(t, got, 1)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got[0].WalletAddress)
}

func TestIsolator_AllPairsRevertingQuarantinesNothing(t *testing.T) {
	store := newMemStore()
	store.add(eligible(1, nil))
	store.add(eligible(2, nil))
	users := []common.Address{common.HexToAddress(wallet(1)), common.HexToAddress(wallet(2))}
	sub := &fakeSubmitter{poison: map[common.Address]bool{users[0]: true, users[1]: true}}

	got := NewIsolator(sub, store, nil).Isolate(context.Background(), users, make([]common.Address, 2))

	assert.Empty(t, got)
	assert.False(t, store.get(wallet(1)).Quarantined)
	assert.Equal(t, 2, sub.simulations)
}

func TestIsolator_SinglePoisonedPairInSingletonBatch(t *testing.T) {
	store := newMemStore()
	store.add(eligible(1, nil))
	users := []common.Address{common.HexToAddress(wallet(1))}
	sub := &fakeSubmitter{poison: map[common.Address]bool{users[0]: true}}

	got := NewIsolator(sub, store, nil).Isolate(context.Background(), users, make([]common.Address, 1))

	assert.Equal(t, []string{wallet(1)}, got)
	assert.True(t, store.get(wallet(1)).Quarantined)
}

// jsonRPCError mimics the error go-ethereum returns for a failed eth_call
type jsonRPCError struct {
	code int
	msg  string
	data interface{}
}

func (e *jsonRPCError) Error() string          { return e.msg }
func (e *jsonRPCError) ErrorCode() int         { return e.code }
func (e *jsonRPCError) ErrorData() interface{} { return e.data }

// codedSimulator fails every pair with err
type codedSimulator struct{ err error }

func (c codedSimulator) Simulate(ctx context.Context, users, referrers []common.Address) error {
	return c.err
}

func TestIsRevert(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "revert code", err: &jsonRPCError{code: 3, msg: "vm error"}, want: true},
		{name: "revert data without code", err: &jsonRPCError{code: -32000, msg: "call failed", data: "0x08c379a0"}, want: true},
		{name: "wrapped revert code", err: apperrors.NewSubmissionError("simulate", &jsonRPCError{code: 3, msg: "vm error"}), want: true},
		{name: "rate limited", err: &jsonRPCError{code: -32005, msg: "limit exceeded"}, want: false},
		{name: "message fallback", err: errors.New("execution reverted: paused"), want: true},
		{name: "transport", err: errors.New("connection reset by peer"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRevert(tt.err))
		})
	}
}

func TestIsolator_QuarantinesOnRevertCode(t *testing.T) {
	store := newMemStore()
	store.add(eligible(1, nil))
	users := []common.Address{common.HexToAddress(wallet(1))}
	sim := codedSimulator{err: apperrors.NewSubmissionError("simulate", &jsonRPCError{code: 3, msg: "vm error"})}

	got := NewIsolator(sim, store, nil).Isolate(context.Background(), users, make([]common.Address, 1))

	assert.Equal(t, []string{wallet(1)}, got)
	assert.True(t, store.get(wallet(1)).Quarantined)
}

func TestIsolator_IgnoresNonRevertRPCErrors(t *testing.T) {
	store := newMemStore()
	store.add(eligible(1, nil))
	users := []common.Address{common.HexToAddress(wallet(1))}
	sim := codedSimulator{err: apperrors.NewProviderError("rpc", &jsonRPCError{code: -32005, msg: "limit exceeded"})}

	got := NewIsolator(sim, store, nil).Isolate(context.Background(), users, make([]common.Address, 1))

	assert.Empty(t, got)
	assert.False(t, store.get(wallet(1)).Quarantined)
}
