package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"certproof/internal/phone/certification"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores records in phone_certifications.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, session_id, phone_hash, phone_masked, proof_level, trust_score,
	otp_verified, ussd_captured, name_matched, sms_analyzed, name_match_score, certified_at`

func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO phone_certifications (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		uuid.UUID(rec.SessionID),
		rec.PhoneHash,
		rec.PhoneMasked,
		string(rec.ProofLevel),
		rec.TrustScore,
		rec.Proofs.OTPVerified,
		rec.Proofs.USSDCaptured,
		rec.Proofs.NameMatched,
		rec.Proofs.SMSAnalyzed,
		rec.NameMatchScore,
		rec.CertifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert phone certification: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindBySession(ctx context.Context, sessionID id.SessionID) (Record, error) {
	query := `SELECT ` + selectColumns + ` FROM phone_certifications
		WHERE session_id = $1 ORDER BY certified_at DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, uuid.UUID(sessionID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("find phone certification: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListByPhoneHash(ctx context.Context, phoneHash string) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM phone_certifications
		WHERE phone_hash = $1 ORDER BY certified_at DESC`
	rows, err := r.db.Query(ctx, query, phoneHash)
	if err != nil {
		return nil, fmt.Errorf("list phone certifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phone certification: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list phone certifications: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec        Record
		sessionID  uuid.UUID
		proofLevel string
	)
	err := row.Scan(
		&rec.ID,
		&sessionID,
		&rec.PhoneHash,
		&rec.PhoneMasked,
		&proofLevel,
		&rec.TrustScore,
		&rec.Proofs.OTPVerified,
		&rec.Proofs.USSDCaptured,
		&rec.Proofs.NameMatched,
		&rec.Proofs.SMSAnalyzed,
		&rec.NameMatchScore,
		&rec.CertifiedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.SessionID = id.SessionID(sessionID)
	rec.ProofLevel = certification.ProofLevel(proofLevel)
	return rec, nil
}
