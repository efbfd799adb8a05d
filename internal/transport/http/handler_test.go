package httptransport_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	certmocks "certproof/internal/certificate/mocks"
	"certproof/internal/document/extraction"
	"certproof/internal/document/ocr"
	"certproof/internal/document/pipeline"
	"certproof/internal/document/preprocess"
	"certproof/internal/phone/certification"
	phonemocks "certproof/internal/phone/certification/mocks"
	"certproof/internal/platform/metrics"
	"certproof/internal/proof/attest"
	"certproof/internal/session"
	httptransport "certproof/internal/transport/http"
	id "certproof/pkg/domain"
	"certproof/pkg/testutil"
)

type staticEngine struct{}

func (staticEngine) Recognize(context.Context, image.Image) (ocr.RawResult, error) {
	return ocr.RawResult{
		Text:       "KOUASSI AMENAN\nNee le 15/01/1990\nExpire le 14/06/2030\nAB1234567",
		Confidence: 82,
	}, nil
}

// HandlerSuite drives the router against a real session service. Only the
// remote collaborators are mocked.
type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	otp     *phonemocks.MockOTPService
	issuer  *certmocks.MockIssuer
	metrics *metrics.Metrics
	service *session.Service
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.otp = phonemocks.NewMockOTPService(s.ctrl)
	s.issuer = certmocks.NewMockIssuer(s.ctrl)
	s.metrics = metrics.New()

	pre := preprocess.New(preprocess.WithSteps(preprocess.Step{Name: preprocess.StepGrayscale, Apply: preprocess.Grayscale}))
	p := pipeline.New(pre, ocr.NewStage(staticEngine{}), extraction.NewEngine())
	s.service = session.NewService(p,
		certification.NewService(s.otp),
		attest.NewSigner("test-signing-key", "certproof", 15*time.Minute),
		s.issuer,
		session.WithGauge(s.metrics),
	)
	s.router = httptransport.NewRouter(httptransport.New(s.service, nil, 1<<20), s.metrics)
}

func (s *HandlerSuite) TearDownTest() {
	s.service.Close(context.Background())
}

func (s *HandlerSuite) pngBytes() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		img.Set(x, 10, color.Black)
	}
	var buf bytes.Buffer
	s.Require().NoError(png.Encode(&buf, img))
	return buf.Bytes()
}

func (s *HandlerSuite) createSession() string {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/sessions"))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[httptransport.SessionResponse](s.T(), rr)
	s.Require().NotEmpty(resp.SessionID)
	s.Empty(resp.Snapshot.Sources)
	return resp.SessionID
}

func (s *HandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
}

func (s *HandlerSuite) TestMetricsExposeRouteAndSessionGauge() {
	s.createSession()

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := rr.Body.String()
	s.Contains(body, "certproof_active_sessions 1")
	s.Contains(body, `route="POST /sessions"`)
}

func (s *HandlerSuite) TestInvalidSessionID() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/sessions/not-a-uuid/snapshot"))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestUnknownSession() {
	path := "/sessions/" + id.NewSessionID().String() + "/snapshot"
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestDocumentLifecycle() {
	sid := s.createSession()
	base := "/sessions/" + sid

	req := testutil.NewMultipartRequest(s.T(), http.MethodPost, base+"/documents", "cni.png", s.pngBytes(),
		map[string]string{"document_type": "cni"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	submitted := testutil.UnmarshalResponse[httptransport.DocumentResponse](s.T(), rr)
	s.Require().NotEmpty(submitted.DocumentToken)
	docPath := base + "/documents/" + submitted.DocumentToken

	var doc *httptransport.DocumentResponse
	s.Require().Eventually(func() bool {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, docPath))
		if rr.Code != http.StatusOK {
			return false
		}
		doc = testutil.UnmarshalResponse[httptransport.DocumentResponse](s.T(), rr)
		return doc.Status == string(pipeline.StatusReady)
	}, 2*time.Second, 10*time.Millisecond)
	s.Require().NotNil(doc.Fields)
	s.Require().NotNil(doc.Fields.FullName)
	s.Equal("KOUASSI AMENAN", *doc.Fields.FullName)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, docPath+"/confirm",
		httptransport.ConfirmDocumentRequest{}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	confirmed := testutil.UnmarshalResponse[httptransport.ConfirmDocumentResponse](s.T(), rr)
	s.Require().Len(confirmed.Snapshot.Sources, 1)
	s.Greater(confirmed.Snapshot.CertaintyCoefficient, 0.0)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, docPath+"/retry"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_state")
}

func (s *HandlerSuite) TestSubmitDocumentRejectsBadInput() {
	base := "/sessions/" + s.createSession()

	req := testutil.NewMultipartRequest(s.T(), http.MethodPost, base+"/documents", "cni.png", s.pngBytes(),
		map[string]string{"document_type": "library_card"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)

	req = testutil.NewMultipartRequest(s.T(), http.MethodPost, base+"/documents", "", nil,
		map[string]string{"document_type": "cni"})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	req = testutil.NewMultipartRequest(s.T(), http.MethodPost, base+"/documents", "cni.png", []byte("not an image"),
		map[string]string{"document_type": "cni"})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestPhoneFlowWithSkips() {
	base := "/sessions/" + s.createSession()
	phone, err := id.ParsePhoneNumber("+2250701020304")
	s.Require().NoError(err)

	s.otp.EXPECT().Send(gomock.Any(), phone, gomock.Any()).
		Return(certification.Dispatch{MaskedPhone: phone.Masked(), ExpiresIn: 5 * time.Minute}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, base+"/phone",
		map[string]string{"phone_number": "+2250701020304"}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	started := testutil.UnmarshalResponse[httptransport.PhoneResponse](s.T(), rr)
	s.Equal(string(certification.StateOTP), started.State)
	s.Require().NotNil(started.OTP)
	s.NotContains(started.MaskedPhone, "01020304")

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, base+"/phone/otp/verify",
		map[string]string{"code": "12345678"}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, base+"/phone/otp/skip"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "state", string(certification.StateUSSD))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, base+"/phone/otp/skip"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_state")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, base+"/phone/ussd/skip"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, base+"/phone/complete"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	res := testutil.UnmarshalResponse[certification.Result](s.T(), rr)
	s.Equal(0, res.TrustScore)
	s.Equal(certification.ProofLevelNone, res.ProofLevel)
}

func (s *HandlerSuite) TestCaptureRejectsUnsupportedMedia() {
	base := "/sessions/" + s.createSession()
	phone, err := id.ParsePhoneNumber("+2250701020304")
	s.Require().NoError(err)
	s.otp.EXPECT().Send(gomock.Any(), phone, gomock.Any()).
		Return(certification.Dispatch{MaskedPhone: phone.Masked(), ExpiresIn: 5 * time.Minute}, nil)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, base+"/phone",
		map[string]string{"phone_number": "+2250701020304"}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	req := testutil.NewMultipartFileRequest(s.T(), http.MethodPost, base+"/phone/ussd", "screenshot", "shot.txt",
		[]byte("plain text, not an image"), nil)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestCertificateWithoutProofAndEndSession() {
	base := "/sessions/" + s.createSession()

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, base+"/certificate"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_state")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, base))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, base+"/snapshot"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestHandlerReadsSessionFromContext() {
	h := httptransport.New(s.service, nil, 1<<20)
	sid := s.service.StartSession(context.Background()).ID

	req := testutil.WithSessionID(testutil.NewRequest(s.T(), http.MethodGet, "/snapshot"), sid.String())
	rr := testutil.DoRequest(http.HandlerFunc(h.HandleSnapshot), req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "certainty_coefficient", 0.0)

	req = testutil.WithSessionID(testutil.NewRequest(s.T(), http.MethodGet, "/snapshot"), "garbage")
	rr = testutil.DoRequest(http.HandlerFunc(h.HandleSnapshot), req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func TestHealthReportsFailingChecks(t *testing.T) {
	router := httptransport.NewRouter(httptransport.New(nil, nil, 0), nil,
		httptransport.Check{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
		httptransport.Check{Name: "postgres", Probe: func(context.Context) error { return nil }},
	)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)

	body := testutil.UnmarshalResponse[struct {
		Status  string            `json:"status"`
		Failing map[string]string `json:"failing"`
	}](t, rr)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Failing)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
