package extraction_test

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certproof/internal/document/extraction"
	"certproof/internal/document/extraction/mocks"
	id "certproof/pkg/domain"
	"certproof/pkg/platform/circuit"
	"certproof/pkg/platform/collaborator"
	"certproof/pkg/platform/outcome"
)

const ocrText = "REPUBLIQUE DE COTE D'IVOIRE\nKOUASSI AMENAN\nCI0012345\n12/05/1988\n12/05/2031"

type EngineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	analyzer *mocks.MockAnalyzer
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.analyzer = mocks.NewMockAnalyzer(s.ctrl)
}

func (s *EngineSuite) TestPrimaryPathMergesServiceResponse() {
	name := "KOUASSI AMENAN AICHA"
	conf := 93.0
	s.analyzer.EXPECT().Analyze(gomock.Any(), extraction.AnalysisRequest{
		OCRText:       ocrText,
		DocumentType:  "cni",
		OCRConfidence: 64,
	}).Return(extraction.AnalysisResponse{FullName: &name, ExtractionConfidence: &conf}, nil)

	res := extraction.NewEngine(extraction.WithAnalyzer(s.analyzer)).
		Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)

	s.True(res.IsOK())
	s.Equal(name, *res.Value.FullName)
	s.Equal(93.0, res.Value.Confidence)
	s.Nil(res.Value.DocumentNumber, "primary path does not mix in regex results")
}

func (s *EngineSuite) TestServiceFailureFallsBackLocally() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		Return(extraction.AnalysisResponse{}, collaborator.NewError(collaborator.ErrorOutage, "document-analysis", "502", nil))

	res := extraction.NewEngine(extraction.WithAnalyzer(s.analyzer)).
		Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)

	s.True(res.IsDegraded())
	s.Equal("analysis_outage", res.Reason)
	s.Equal("KOUASSI AMENAN", *res.Value.FullName)
	s.Equal("CI0012345", *res.Value.DocumentNumber)
	s.Equal("12/05/1988", *res.Value.DateOfBirth)
	s.Equal("12/05/2031", *res.Value.ExpiryDate)
	s.Equal(64.0, res.Value.Confidence)
}

func (s *EngineSuite) TestUncategorizedErrorStillFallsBack() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(extraction.AnalysisResponse{}, errors.New("boom"))

	res := extraction.NewEngine(extraction.WithAnalyzer(s.analyzer)).
		Extract(context.Background(), "", id.DocumentTypePassport, 30)

	s.True(res.IsDegraded())
	s.Equal("analysis_internal", res.Reason)
	s.False(res.IsFailed())
}

func (s *EngineSuite) TestNoAnalyzerIsDegraded() {
	res := extraction.NewEngine().Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)

	s.Equal(outcome.StatusDegraded, res.Status)
	s.Equal(extraction.ReasonAnalysisDisabled, res.Reason)
}

func (s *EngineSuite) TestOpenBreakerSkipsRemoteCall() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("document-analysis",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		Return(extraction.AnalysisResponse{}, errors.New("down")).Times(2)

	engine := extraction.NewEngine(extraction.WithAnalyzer(s.analyzer), extraction.WithBreaker(breaker))
	engine.Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)
	engine.Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)

	res := engine.Extract(context.Background(), ocrText, id.DocumentTypeNationalID, 64)
	s.True(res.IsDegraded())
	s.Equal(extraction.ReasonCircuitOpen, res.Reason)
	s.True(breaker.IsOpen())
}

func (s *EngineSuite) TestConfidenceAlwaysInRange() {
	for _, c := range []float64{-20, 0, 55, 100, 250} {
		res := extraction.NewEngine().Extract(context.Background(), ocrText, id.DocumentTypeNationalID, c)
		s.GreaterOrEqual(res.Value.Confidence, 0.0)
		s.LessOrEqual(res.Value.Confidence, 100.0)
	}
}
