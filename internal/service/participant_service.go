package service

import (
	"context"
	"net/mail"
	"strings"

	apperrors "github.com/memes-airdrop/internal/errors"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
)

// participantRepository is the subset of storage.ParticipantRepository the service uses
type participantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByWallet(ctx context.Context, wallet string) (*models.Participant, error)
	SetReferredBy(ctx context.Context, wallet, referredBy string) error
	VerifyEmail(ctx context.Context, wallet string) error
	CompleteTask(ctx context.Context, wallet string, task types.Task) error
	FindWalletByReferralCode(ctx context.Context, code string) (wallet string, found bool, err error)
}

// ParticipantService handles registration and the airdrop gates
type ParticipantService struct {
	repo participantRepository
}

// NewParticipantService creates a new participant service
func NewParticipantService(repo participantRepository) *ParticipantService {
	return &ParticipantService{repo: repo}
}

// RegisterInput represents input for registering a participant
type RegisterInput struct {
	WalletAddress string  `json:"walletAddress"`
	Email         string  `json:"email"`
	ReferredBy    *string `json:"referredBy,omitempty"`
}

// ParticipantView is a participant plus its derived export state
type ParticipantView struct {
	*models.Participant
	TasksCompleted bool `json:"tasksCompleted"`
	Eligible       bool `json:"eligible"`
}

// Register creates a participant with a fresh referral code
func (s *ParticipantService) Register(ctx context.Context, input *RegisterInput) (*ParticipantView, error) {
	wallet, ok := types.NormalizeAddress(input.WalletAddress)
	if !ok {
		return nil, apperrors.NewInvalidAddressError(input.WalletAddress)
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	p := &models.Participant{WalletAddress: wallet, Email: email}

	if input.ReferredBy != nil {
		if code := strings.TrimSpace(*input.ReferredBy); code != "" {
			if err := s.checkNotSelf(ctx, wallet, code); err != nil {
				return nil, err
			}
			p.ReferredBy = &code
		}
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"walletAddress": p.WalletAddress,
		"referralCode":  p.ReferralCode,
		"referred":      p.ReferredBy != nil,
	}).Info("Participant registered")

	return view(p), nil
}

// Get returns a participant by wallet address
func (s *ParticipantService) Get(ctx context.Context, wallet string) (*ParticipantView, error) {
	normalized, ok := types.NormalizeAddress(wallet)
	if !ok {
		return nil, apperrors.NewInvalidAddressError(wallet)
	}

	p, err := s.repo.GetByWallet(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return view(p), nil
}

// VerifyEmail sets the email gate and returns the updated participant
func (s *ParticipantService) VerifyEmail(ctx context.Context, wallet string) (*ParticipantView, error) {
	normalized, ok := types.NormalizeAddress(wallet)
	if !ok {
		return nil, apperrors.NewInvalidAddressError(wallet)
	}
	if err := s.repo.VerifyEmail(ctx, normalized); err != nil {
		return nil, err
	}
	return s.Get(ctx, normalized)
}

// CompleteTask sets one social task gate and returns the updated participant
func (s *ParticipantService) CompleteTask(ctx context.Context, wallet, task string) (*ParticipantView, error) {
	normalized, ok := types.NormalizeAddress(wallet)
	if !ok {
		return nil, apperrors.NewInvalidAddressError(wallet)
	}

	t := types.Task(strings.ToLower(strings.TrimSpace(task)))
	if !t.Valid() {
		return nil, apperrors.NewInvalidParameterError("task", "must be one of group, channel, follow, subscribe")
	}

	if err := s.repo.CompleteTask(ctx, normalized, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, normalized)
}

// SetReferrer records the referral code a participant signed up with.
// The first code wins.
func (s *ParticipantService) SetReferrer(ctx context.Context, wallet, code string) (*ParticipantView, error) {
	normalized, ok := types.NormalizeAddress(wallet)
	if !ok {
		return nil, apperrors.NewInvalidAddressError(wallet)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.NewInvalidParameterError("referralCode", "must not be empty")
	}
	if err := s.checkNotSelf(ctx, normalized, code); err != nil {
		return nil, err
	}

	if err := s.repo.SetReferredBy(ctx, normalized, code); err != nil {
		return nil, err
	}
	return s.Get(ctx, normalized)
}

// checkNotSelf rejects a code that belongs to wallet itself. Unknown codes pass;
// they resolve to the zero sponsor at export time.
func (s *ParticipantService) checkNotSelf(ctx context.Context, wallet, code string) error {
	if strings.EqualFold(code, wallet) {
		return apperrors.NewInvalidParameterError("referredBy", "participant cannot refer itself")
	}

	owner, found, err := s.repo.FindWalletByReferralCode(ctx, code)
	if err != nil {
		return apperrors.NewDatabaseError("lookup referral code", err)
	}
	if found && strings.EqualFold(owner, wallet) {
		return apperrors.NewInvalidParameterError("referredBy", "participant cannot refer itself")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperrors.NewInvalidParameterError("email", "must not be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.NewInvalidParameterError("email", "invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func view(p *models.Participant) *ParticipantView {
	return &ParticipantView{
		Participant:    p,
		TasksCompleted: p.TasksCompleted(),
		Eligible:       p.EligibleForExport(),
	}
}
