//go:build integration

package results_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certproof/internal/certificate/results"
	"certproof/internal/phone/certification"
	"certproof/internal/platform/postgres"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/sentinel"
	"certproof/pkg/testutil/containers"
)

type PostgresRepositorySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	repo     *results.PostgresRepository
}

func TestPostgresRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRepositorySuite))
}

func (s *PostgresRepositorySuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), postgres.Schema...)
	s.repo = results.NewPostgresRepository(s.postgres.Pool)
}

func (s *PostgresRepositorySuite) SetupTest() {
	_, err := s.postgres.Pool.Exec(context.Background(), "TRUNCATE phone_certifications")
	s.Require().NoError(err)
}

func (s *PostgresRepositorySuite) TestSaveAndFind() {
	ctx := context.Background()
	sid := id.NewSessionID()
	score := 91.5
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rec := results.NewRecord(sid, certification.Result{
		PhoneNumber:    id.PhoneNumber("+2250701020304"),
		ProofLevel:     certification.ProofLevelCertified,
		TrustScore:     85,
		Proofs:         certification.Proofs{OTPVerified: true, USSDCaptured: true, NameMatched: true},
		NameMatchScore: &score,
		CertifiedAt:    at,
	}, "phone-hash")

	s.Require().NoError(s.repo.Save(ctx, rec))

	got, err := s.repo.FindBySession(ctx, sid)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(sid, got.SessionID)
	s.Equal(certification.ProofLevelCertified, got.ProofLevel)
	s.Equal(rec.Proofs, got.Proofs)
	s.Require().NotNil(got.NameMatchScore)
	s.InDelta(91.5, *got.NameMatchScore, 1e-9)
	s.True(at.Equal(got.CertifiedAt))
}

func (s *PostgresRepositorySuite) TestFindMissingIsNotFound() {
	_, err := s.repo.FindBySession(context.Background(), id.NewSessionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRepositorySuite) TestListByPhoneHashNewestFirst() {
	ctx := context.Background()
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, score := range []int{25, 50} {
		rec := results.NewRecord(id.NewSessionID(), certification.Result{
			PhoneNumber: id.PhoneNumber("+2250701020304"),
			ProofLevel:  certification.ClassifyProofLevel(score),
			TrustScore:  score,
			CertifiedAt: t0.Add(time.Duration(i) * time.Hour),
		}, "shared-hash")
		s.Require().NoError(s.repo.Save(ctx, rec))
	}

	list, err := s.repo.ListByPhoneHash(ctx, "shared-hash")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(50, list[0].TrustScore)
	s.Nil(list[1].NameMatchScore)
}
