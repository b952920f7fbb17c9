package exporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/memes-airdrop/internal/chain"
	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// memStore is an in-memory ParticipantStore keyed by wallet, ordered by insertion
type memStore struct {
	mu           sync.Mutex
	participants []*models.Participant

	selectErr  error
	lookupErr  error
	lookupHook func(code string)
	markErr    map[string]error
	markCalls  int
}

func newMemStore() *memStore {
	return &memStore{markErr: map[string]error{}}
}

func (s *memStore) add(p *models.Participant) *models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = int64(len(s.participants) + 1)
	p.WalletAddress = strings.ToLower(p.WalletAddress)
	if p.ReferralCode == "" {
		p.ReferralCode = fmt.Sprintf("MEMES-%04d", p.ID)
	}
	s.participants = append(s.participants, p)
	return p
}

func (s *memStore) get(wallet string) *models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.WalletAddress == strings.ToLower(wallet) {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (s *memStore) SelectEligible(ctx context.Context, limit int) ([]models.ExportCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	var out []models.ExportCandidate
	for _, p := range s.participants {
		if len(out) == limit {
			break
		}
		if p.EligibleForExport() {
			out = append(out, p.Candidate())
		}
	}
	return out, nil
}

func (s *memStore) FindWalletByReferralCode(ctx context.Context, code string) (string, bool, error) {
	if s.lookupHook != nil {
		s.lookupHook(code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	for _, p := range s.participants {
		if p.ReferralCode == code {
			return p.WalletAddress, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) MarkExported(ctx context.Context, wallet string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if err := s.markErr[wallet]; err != nil {
		return false, err
	}
	for _, p := range s.participants {
		if p.WalletAddress == wallet {
			if p.Exported {
				return false, nil
			}
			p.Exported = true
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MarkQuarantined(ctx context.Context, wallet string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.WalletAddress == wallet && !p.Exported && !p.Quarantined {
			p.Quarantined = true
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) exportedWallets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.participants {
		if p.Exported {
			out = append(out, p.WalletAddress)
		}
	}
	sort.Strings(out)
	return out
}

type submission struct {
	users     []common.Address
	referrers []common.Address
}

// fakeSubmitter records batches and answers with a configurable outcome
type fakeSubmitter struct {
	mu          sync.Mutex
	submissions []submission
	simulations int

	// err is returned by Submit; status is reported alongside it when set
	err    error
	status types.BatchStatus
	// poison makes Submit revert whenever a listed user is in the batch
	poison map[common.Address]bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, users, referrers []common.Address) (*chain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submissions = append(f.submissions, submission{
		users:     append([]common.Address(nil), users...),
		referrers: append([]common.Address(nil), referrers...),
	})

	hash := common.BigToHash(common.Big1)
	hash[0] = byte(len(f.submissions))

	if apperrors.Is(f.err, apperrors.CategoryConfiguration) {
		return nil, f.err
	}
	if f.err != nil {
		status := f.status
		if status == "" {
			status = types.BatchStatusFailed
		}
		return &chain.SubmitResult{TxHash: hash, Status: status}, f.err
	}
	for _, u := range users {
		if f.poison[u] {
			return &chain.SubmitResult{TxHash: hash, Status: types.BatchStatusFailed},
				apperrors.NewSubmissionError("receipt status failed", errors.New("execution reverted"))
		}
	}
	return &chain.SubmitResult{TxHash: hash, Status: types.BatchStatusConfirmed, BlockNumber: 100, GasUsed: 21000}, nil
}

func (f *fakeSubmitter) Simulate(ctx context.Context, users, referrers []common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulations++
	for _, u := range users {
		if f.poison[u] {
			return apperrors.NewSubmissionError("simulate", errors.New("execution reverted: user blocked"))
		}
	}
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeSubmitter) last() submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[len(f.submissions)-1]
}

// memAudit collects audit rows
type memAudit struct {
	mu   sync.Mutex
	rows []*models.ExportBatch
	err  error
}

func (a *memAudit) Record(ctx context.Context, b *models.ExportBatch) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, b)
	return a.err
}

func wallet(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func eligible(i int, referredBy *string) *models.Participant {
	return &models.Participant{
		WalletAddress: wallet(i),
		EmailVerified: true,
		GroupJoined:   true,
		ChannelJoined: true,
		Followed:      true,
		Subscribed:    true,
		ReferredBy:    referredBy,
	}
}

func strPtr(s string) *string {
	return &s
}

func addrStrings(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = strings.ToLower(a.Hex())
	}
	sort.Strings(out)
	return out
}
