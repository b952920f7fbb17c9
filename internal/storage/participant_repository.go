package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/types"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// eligibleWhere is the SQL form of Participant.EligibleForExport
const eligibleWhere = `
	email_verified = TRUE
	AND group_joined = TRUE
	AND channel_joined = TRUE
	AND followed = TRUE
	AND subscribed = TRUE
	AND exported = FALSE
	AND quarantined = FALSE`

const participantColumns = `
	id, wallet_address, email, email_verified, referral_code, referred_by,
	group_joined, channel_joined, followed, subscribed,
	airdrop_tokens::text, referral_tokens::text,
	exported, quarantined, created_at, updated_at, exported_at`

// taskColumns whitelists the column each task flag lives in
var taskColumns = map[types.Task]string{
	types.TaskGroup:     "group_joined",
	types.TaskChannel:   "channel_joined",
	types.TaskFollow:    "followed",
	types.TaskSubscribe: "subscribed",
}

// ParticipantRepository handles participant persistence
type ParticipantRepository struct {
	db *PostgresDB
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *PostgresDB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// SelectEligible returns up to limit export candidates in insertion order
func (r *ParticipantRepository) SelectEligible(ctx context.Context, limit int) ([]models.ExportCandidate, error) {
	query := `
		SELECT wallet_address, referred_by
		FROM participants
		WHERE ` + eligibleWhere + `
		ORDER BY id ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible participants: %w", err)
	}
	defer rows.Close()

	candidates := make([]models.ExportCandidate, 0, limit)
	for rows.Next() {
		var c models.ExportCandidate
		if err := rows.Scan(&c.WalletAddress, &c.ReferredBy); err != nil {
			return nil, fmt.Errorf("failed to scan eligible participant: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligible participants: %w", err)
	}

	return candidates, nil
}

// CountEligible returns how many participants are waiting for export
func (r *ParticipantRepository) CountEligible(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE `+eligibleWhere).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count eligible participants: %w", err)
	}
	return count, nil
}

// FindWalletByReferralCode returns the wallet owning code. found is false on a lookup miss.
func (r *ParticipantRepository) FindWalletByReferralCode(ctx context.Context, code string) (wallet string, found bool, err error) {
	err = r.db.Pool().QueryRow(ctx,
		`SELECT wallet_address FROM participants WHERE referral_code = $1`,
		code,
	).Scan(&wallet)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up referral code: %w", err)
	}

	return wallet, true, nil
}

// MarkExported flips exported to true. It reports false when the row was missing or already exported.
// Nothing in this package clears the flag.
func (r *ParticipantRepository) MarkExported(ctx context.Context, wallet string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE participants
		SET exported = TRUE, exported_at = NOW(), updated_at = NOW()
		WHERE wallet_address = $1 AND exported = FALSE
	`, wallet)
	if err != nil {
		return false, fmt.Errorf("failed to mark participant exported: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkQuarantined removes a participant from the eligible set without exporting it
func (r *ParticipantRepository) MarkQuarantined(ctx context.Context, wallet string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE participants
		SET quarantined = TRUE, updated_at = NOW()
		WHERE wallet_address = $1 AND exported = FALSE AND quarantined = FALSE
	`, wallet)
	if err != nil {
		return false, fmt.Errorf("failed to quarantine participant: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Create inserts a new participant and assigns its referral code
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	wallet, ok := types.NormalizeAddress(p.WalletAddress)
	if !ok {
		return &types.ServiceError{
			Code:    "INVALID_ADDRESS",
			Message: fmt.Sprintf("invalid address format: %s", p.WalletAddress),
			Details: map[string]interface{}{"address": p.WalletAddress},
		}
	}
	p.WalletAddress = wallet

	if p.ReferralCode == "" {
		p.ReferralCode = NewReferralCode()
	}
	if p.ReferredBy != nil && strings.TrimSpace(*p.ReferredBy) == "" {
		p.ReferredBy = nil
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO participants (wallet_address, email, referral_code, referred_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.WalletAddress, p.Email, p.ReferralCode, p.ReferredBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &types.ServiceError{
				Code:    "PARTICIPANT_EXISTS",
				Message: fmt.Sprintf("participant already registered: %s", p.WalletAddress),
				Details: map[string]interface{}{"walletAddress": p.WalletAddress},
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}

	p.AirdropTokens = decimal.Zero
	p.ReferralTokens = decimal.Zero
	return nil
}

// GetByWallet retrieves a participant by wallet address
func (r *ParticipantRepository) GetByWallet(ctx context.Context, wallet string) (*models.Participant, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE wallet_address = $1`,
		strings.ToLower(wallet),
	)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, participantNotFound(wallet)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// SetReferredBy records the referrer once. A second call fails with REFERRER_ALREADY_SET.
func (r *ParticipantRepository) SetReferredBy(ctx context.Context, wallet, referredBy string) error {
	wallet = strings.ToLower(wallet)
	tag, err := r.db.Pool().Exec(ctx, `
		UPDATE participants
		SET referred_by = $2, updated_at = NOW()
		WHERE wallet_address = $1 AND referred_by IS NULL
	`, wallet, referredBy)
	if err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.exists(ctx, wallet)
	if err != nil {
		return err
	}
	if !exists {
		return participantNotFound(wallet)
	}
	return &types.ServiceError{
		Code:    "REFERRER_ALREADY_SET",
		Message: fmt.Sprintf("referrer already set for %s", wallet),
		Details: map[string]interface{}{"walletAddress": wallet},
	}
}

// VerifyEmail marks the participant's email as verified
func (r *ParticipantRepository) VerifyEmail(ctx context.Context, wallet string) error {
	return r.setFlag(ctx, wallet, "email_verified")
}

// CompleteTask sets the flag for one social task
func (r *ParticipantRepository) CompleteTask(ctx context.Context, wallet string, task types.Task) error {
	column, ok := taskColumns[task]
	if !ok {
		return &types.ServiceError{
			Code:    "INVALID_PARAMETER",
			Message: fmt.Sprintf("unknown task: %s", task),
			Details: map[string]interface{}{"task": string(task)},
		}
	}
	return r.setFlag(ctx, wallet, column)
}

// setFlag sets a boolean column to true. column must come from a fixed whitelist.
func (r *ParticipantRepository) setFlag(ctx context.Context, wallet, column string) error {
	wallet = strings.ToLower(wallet)
	query := fmt.Sprintf(`
		UPDATE participants
		SET %s = TRUE, updated_at = NOW()
		WHERE wallet_address = $1
	`, column)

	tag, err := r.db.Pool().Exec(ctx, query, wallet)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return participantNotFound(wallet)
	}
	return nil
}

func (r *ParticipantRepository) exists(ctx context.Context, wallet string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE wallet_address = $1)`,
		wallet,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant existence: %w", err)
	}
	return exists, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var airdropTokens, referralTokens string

	err := row.Scan(
		&p.ID,
		&p.WalletAddress,
		&p.Email,
		&p.EmailVerified,
		&p.ReferralCode,
		&p.ReferredBy,
		&p.GroupJoined,
		&p.ChannelJoined,
		&p.Followed,
		&p.Subscribed,
		&airdropTokens,
		&referralTokens,
		&p.Exported,
		&p.Quarantined,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ExportedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.AirdropTokens, err = decimal.NewFromString(airdropTokens); err != nil {
		return nil, fmt.Errorf("invalid airdrop_tokens %q: %w", airdropTokens, err)
	}
	if p.ReferralTokens, err = decimal.NewFromString(referralTokens); err != nil {
		return nil, fmt.Errorf("invalid referral_tokens %q: %w", referralTokens, err)
	}

	return &p, nil
}

func participantNotFound(wallet string) error {
	return &types.ServiceError{
		Code:    "PARTICIPANT_NOT_FOUND",
		Message: fmt.Sprintf("participant not found: %s", wallet),
		Details: map[string]interface{}{"walletAddress": wallet},
	}
}

// NewReferralCode returns a fresh shareable referral code
func NewReferralCode() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "MEMES-" + strings.ToUpper(id[:10])
}
