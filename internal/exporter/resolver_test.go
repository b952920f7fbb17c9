package exporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/memes-airdrop/internal/metrics"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSponsorResolver_Resolve(t *testing.T) {
	store := newMemStore()
	store.add(&models.Participant{WalletAddress: wallet(7), ReferralCode: "MEMES-SEVEN"})
	r := NewSponsorResolver(store, nil)

	tests := []struct {
		name       string
		referredBy *string
		want       common.Address
	}{
		{name: "nil", referredBy: nil, want: types.ZeroAddress},
		{name: "empty", referredBy: strPtr(""), want: types.ZeroAddress},
		{name: "blank", referredBy: strPtr("   "), want: types.ZeroAddress},
		{name: "known code", referredBy: strPtr("MEMES-SEVEN"), want: common.HexToAddress(wallet(7))},
		{name: "known code with padding", referredBy: strPtr(" MEMES-SEVEN "), want: common.HexToAddress(wallet(7))},
		{name: "unknown code", referredBy: strPtr("MEMES-NONE"), want: types.ZeroAddress},
		{name: "raw address that is not a code", referredBy: strPtr(wallet(7)), want: types.ZeroAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.referredBy))
		})
	}
}

func TestSponsorResolver_StorageErrorIsObservable(t *testing.T) {
	store := newMemStore()
	store.lookupErr = errors.New("connection refused")
	m := metrics.NewExportMetrics(prometheus.NewRegistry())
	r := NewSponsorResolver(store, m)

	assert.Equal(t, types.ZeroAddress, r.Resolve(context.Background(), strPtr("MEMES-0001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionFailures.WithLabelValues(metrics.ResolutionStorageError)))
}

func TestSponsorResolver_InvalidStoredWallet(t *testing.T) {
	store := newMemStore()
	store.add(&models.Participant{WalletAddress: "not-an-address", ReferralCode: "MEMES-BAD"})
	m := metrics.NewExportMetrics(prometheus.NewRegistry())
	r := NewSponsorResolver(store, m)

	assert.Equal(t, types.ZeroAddress, r.Resolve(context.Background(), strPtr("MEMES-BAD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionFailures.WithLabelValues(metrics.ResolutionInvalidStored)))
}

func TestSponsorResolver_PanicDegradesToZero(t *testing.T) {
	store := newMemStore()
	store.lookupHook = func(string) { panic("driver bug") }
	r := NewSponsorResolver(store, nil)

	assert.NotPanics(t, func() {
		assert.Equal(t, types.ZeroAddress, r.Resolve(context.Background(), strPtr("MEMES-0001")))
	})
}

func TestSponsorResolver_ResolveBatchLooksUpEachCodeOnce(t *testing.T) {
	store := newMemStore()
	store.add(&models.Participant{WalletAddress: wallet(9), ReferralCode: "MEMES-NINE"})
	lookups := 0
	store.lookupHook = func(string) { lookups++ }
	r := NewSponsorResolver(store, nil)

	got := r.ResolveBatch(context.Background(), []models.ExportCandidate{
		{WalletAddress: wallet(1), ReferredBy: strPtr("MEMES-NINE")},
		{WalletAddress: wallet(2)},
		{WalletAddress: wallet(3), ReferredBy: strPtr("MEMES-NINE")},
	})

	assert.Equal(t, []common.Address{common.HexToAddress(wallet(9)), types.ZeroAddress, common.HexToAddress(wallet(9))}, got)
	assert.Equal(t, 1, lookups)
}

func TestSponsorResolver_TotalityProperty(t *testing.T) {
	store := newMemStore()
	known := map[common.Address]bool{types.ZeroAddress: true}
	for i := 1; i <= 5; i++ {
		p := store.add(&models.Participant{WalletAddress: wallet(i), ReferralCode: fmt.Sprintf("MEMES-K%d", i)})
		known[common.HexToAddress(p.WalletAddress)] = true
	}
	r := NewSponsorResolver(store, nil)

	referredBy := gen.OneGenOf(
		gen.Const((*string)(nil)),
		gen.AnyString().Map(func(s string) *string { return &s }),
		gen.IntRange(0, 7).Map(func(i int) *string { s := fmt.Sprintf("MEMES-K%d", i); return &s }),
		gen.IntRange(0, 7).Map(func(i int) *string { s := wallet(i); return &s }),
	)

	properties := gopter.NewProperties(nil)
	properties.Property("resolution returns the zero address or a known sponsor", prop.ForAll(
		func(v *string) bool {
			return known[r.Resolve(context.Background(), v)]
		},
		referredBy,
	))
	properties.TestingRun(t)
}

func TestRunCycle_EligibilityGateProperty(t *testing.T) {
	type flags struct {
		verified, group, channel, follow, subscribe, exported bool
	}
	flagGen := gen.SliceOfN(6, gen.Bool()).Map(func(b []bool) flags {
		return flags{b[0], b[1], b[2], b[3], b[4], b[5]}
	})

	properties := gopter.NewProperties(nil)
	properties.Property("a cycle submits exactly the eligible participants", prop.ForAll(
		func(all []flags) bool {
			store := newMemStore()
			var want []string
			for i, f := range all {
				p := store.add(&models.Participant{
					WalletAddress: wallet(i + 1),
					EmailVerified: f.verified,
					GroupJoined:   f.group,
					ChannelJoined: f.channel,
					Followed:      f.follow,
					Subscribed:    f.subscribe,
					Exported:      f.exported,
				})
				if f.verified && f.group && f.channel && f.follow && f.subscribe && !f.exported {
					want = append(want, p.WalletAddress)
				}
			}

			sub := &fakeSubmitter{}
			e := New(store, sub, nil, nil, Config{BatchSize: len(all) + 1})
			result := e.RunCycle(context.Background())

			if len(want) == 0 {
				return result.Outcome == types.OutcomeIdle && sub.count() == 0
			}
			sort.Strings(want)
			got := addrStrings(sub.last().users)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, flagGen),
	))
	properties.TestingRun(t)
}
