package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certproof/internal/certificate"
	"certproof/internal/document/extraction"
	"certproof/internal/document/pipeline"
	"certproof/internal/phone/certification"
	"certproof/internal/proof/registry"
	"certproof/internal/session"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
	"certproof/pkg/platform/httputil"
	"certproof/pkg/requestcontext"
)

// Service defines the session operations exposed over HTTP. Satisfied by
// session.Service.
type Service interface {
	StartSession(ctx context.Context) session.View
	Session(ctx context.Context, sid id.SessionID) (session.View, error)
	Snapshot(ctx context.Context, sid id.SessionID) (registry.Snapshot, error)
	End(ctx context.Context, sid id.SessionID) error

	SubmitDocument(ctx context.Context, sid id.SessionID, r io.Reader, docType id.DocumentType) (pipeline.Document, error)
	DocumentStatus(ctx context.Context, sid id.SessionID, token id.DocumentToken) (pipeline.Document, error)
	ConfirmDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken, corrections map[string]string, acknowledged bool) (extraction.Confirmed, registry.Snapshot, error)
	CancelDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken) error
	RetryDocument(ctx context.Context, sid id.SessionID, token id.DocumentToken) (pipeline.Document, error)

	StartPhone(ctx context.Context, sid id.SessionID, phone id.PhoneNumber) (certification.View, error)
	PhoneStatus(ctx context.Context, sid id.SessionID) (certification.View, error)
	VerifyOTP(ctx context.Context, sid id.SessionID, code string) (certification.View, error)
	ResendOTP(ctx context.Context, sid id.SessionID) (certification.View, error)
	SkipOTP(ctx context.Context, sid id.SessionID) (certification.View, error)
	CaptureUSSD(ctx context.Context, sid id.SessionID, shot certification.Screenshot) (session.CaptureResult, error)
	SkipUSSD(ctx context.Context, sid id.SessionID) (certification.View, error)
	CompletePhone(ctx context.Context, sid id.SessionID) (certification.Result, error)

	RequestCertificate(ctx context.Context, sid id.SessionID) (certificate.Response, error)
}

var screenshotTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Handler wires session endpoints to the session service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	maxUpload int64
}

// New constructs a handler. maxUpload bounds multipart bodies.
func New(service Service, logger *slog.Logger, maxUpload int64) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{service: service, logger: logger, maxUpload: maxUpload}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleStartSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(h.withSession)
		r.Get("/", h.HandleGetSession)
		r.Delete("/", h.HandleEndSession)
		r.Get("/snapshot", h.HandleSnapshot)

		r.Post("/documents", h.HandleSubmitDocument)
		r.Get("/documents/{token}", h.HandleDocumentStatus)
		r.Delete("/documents/{token}", h.HandleCancelDocument)
		r.Post("/documents/{token}/confirm", h.HandleConfirmDocument)
		r.Post("/documents/{token}/retry", h.HandleRetryDocument)

		r.Post("/phone", h.HandleStartPhone)
		r.Get("/phone", h.HandlePhoneStatus)
		r.Post("/phone/otp/verify", h.HandleVerifyOTP)
		r.Post("/phone/otp/resend", h.phoneAction("resend otp", Service.ResendOTP))
		r.Post("/phone/otp/skip", h.phoneAction("skip otp", Service.SkipOTP))
		r.Post("/phone/ussd", h.HandleCaptureUSSD)
		r.Post("/phone/ussd/skip", h.phoneAction("skip ussd", Service.SkipUSSD))
		r.Post("/phone/complete", h.HandleCompletePhone)

		r.Post("/certificate", h.HandleRequestCertificate)
	})
}

// HandleStartSession handles POST /sessions.
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.service.StartSession(ctx)
	h.logger.InfoContext(ctx, "session created",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", view.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromSession(view))
}

// HandleGetSession handles GET /sessions/{sessionID}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Session(r.Context(), sid)
	if err != nil {
		h.fail(w, r, "get session", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(view))
}

// HandleEndSession handles DELETE /sessions/{sessionID}.
func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.End(r.Context(), sid); err != nil {
		h.fail(w, r, "end session", sid, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSnapshot handles GET /sessions/{sessionID}/snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(r.Context(), sid)
	if err != nil {
		h.fail(w, r, "snapshot", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withSources(snap))
}

// HandleSubmitDocument handles POST /sessions/{sessionID}/documents. The
// body is multipart with a "file" part and a "document_type" field; the
// pipeline runs in the background and the response carries the token to
// poll.
func (h *Handler) HandleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	file, cleanup, ok := h.upload(w, r, "file")
	if !ok {
		return
	}
	defer cleanup()

	docType, err := id.ParseDocumentType(r.FormValue("document_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.SubmitDocument(ctx, sid, file, docType)
	if err != nil {
		h.fail(w, r, "submit document", sid, err)
		return
	}
	h.logger.InfoContext(ctx, "document submitted",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sid.String(),
		"document_type", docType.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, FromDocument(doc))
}

// HandleDocumentStatus handles GET /sessions/{sessionID}/documents/{token}.
func (h *Handler) HandleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	sid, token, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	doc, err := h.service.DocumentStatus(r.Context(), sid, token)
	if err != nil {
		h.fail(w, r, "document status", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleConfirmDocument handles POST .../documents/{token}/confirm.
func (h *Handler) HandleConfirmDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := requestcontext.Now(ctx)
	sid, token, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfirmDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	confirmed, snap, err := h.service.ConfirmDocument(ctx, sid, token, req.Corrections, req.Acknowledged)
	if err != nil {
		h.fail(w, r, "confirm document", sid, err)
		return
	}
	h.logger.InfoContext(ctx, "document confirmed",
		"request_id", requestID,
		"session_id", sid.String(),
		"corrected_fields", len(confirmed.UserCorrected),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, ConfirmDocumentResponse{Confirmed: confirmed, Snapshot: withSources(snap)})
}

// HandleCancelDocument handles DELETE .../documents/{token}.
func (h *Handler) HandleCancelDocument(w http.ResponseWriter, r *http.Request) {
	sid, token, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelDocument(r.Context(), sid, token); err != nil {
		h.fail(w, r, "cancel document", sid, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRetryDocument handles POST .../documents/{token}/retry.
func (h *Handler) HandleRetryDocument(w http.ResponseWriter, r *http.Request) {
	sid, token, ok := h.documentRef(w, r)
	if !ok {
		return
	}
	doc, err := h.service.RetryDocument(r.Context(), sid, token)
	if err != nil {
		h.fail(w, r, "retry document", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, FromDocument(doc))
}

// HandleStartPhone handles POST /sessions/{sessionID}/phone.
func (h *Handler) HandleStartPhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartPhoneRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	view, err := h.service.StartPhone(ctx, sid, req.ParsedPhone())
	if err != nil {
		h.fail(w, r, "start phone certification", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPhone(view))
}

// HandlePhoneStatus handles GET /sessions/{sessionID}/phone.
func (h *Handler) HandlePhoneStatus(w http.ResponseWriter, r *http.Request) {
	h.phoneAction("phone status", Service.PhoneStatus)(w, r)
}

// HandleVerifyOTP handles POST /sessions/{sessionID}/phone/otp/verify.
func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	view, err := h.service.VerifyOTP(ctx, sid, req.Code)
	if err != nil {
		h.fail(w, r, "verify otp", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPhone(view))
}

// HandleCaptureUSSD handles POST /sessions/{sessionID}/phone/ussd with a
// multipart "screenshot" part.
func (h *Handler) HandleCaptureUSSD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	file, cleanup, ok := h.upload(w, r, "screenshot")
	if !ok {
		return
	}
	defer cleanup()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unreadable screenshot"))
		return
	}
	mediaType := http.DetectContentType(data)
	if !screenshotTypes[mediaType] {
		clear(data)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "screenshot must be jpeg, png or webp"))
		return
	}

	res, err := h.service.CaptureUSSD(ctx, sid, certification.Screenshot{Data: data, MediaType: mediaType})
	if err != nil {
		h.fail(w, r, "capture ussd", sid, err)
		return
	}
	h.logger.InfoContext(ctx, "ussd screenshot analyzed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sid.String(),
		"analysis", string(res.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromCapture(res))
}

// HandleCompletePhone handles POST /sessions/{sessionID}/phone/complete.
func (h *Handler) HandleCompletePhone(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	res, err := h.service.CompletePhone(r.Context(), sid)
	if err != nil {
		h.fail(w, r, "complete phone certification", sid, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleRequestCertificate handles POST /sessions/{sessionID}/certificate.
func (h *Handler) HandleRequestCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.RequestCertificate(ctx, sid)
	if err != nil {
		h.fail(w, r, "request certificate", sid, err)
		return
	}
	h.logger.InfoContext(ctx, "certificate issued",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sid.String(),
		"certificate_id", resp.CertificateID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type phoneFunc func(s Service, ctx context.Context, sid id.SessionID) (certification.View, error)

// phoneAction serves bodiless phone transitions.
func (h *Handler) phoneAction(op string, fn phoneFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, ok := h.sessionID(w, r)
		if !ok {
			return
		}
		view, err := fn(h.service, r.Context(), sid)
		if err != nil {
			h.fail(w, r, op, sid, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, FromPhone(view))
	}
}

// withSession parses the path session id into the request context.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(r.Context(), sid)))
	})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sid := requestcontext.SessionID(r.Context())
	if sid.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "session id is required"))
		return id.SessionID{}, false
	}
	return sid, true
}

func (h *Handler) documentRef(w http.ResponseWriter, r *http.Request) (id.SessionID, id.DocumentToken, bool) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return id.SessionID{}, id.DocumentToken{}, false
	}
	token, err := id.ParseDocumentToken(chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SessionID{}, id.DocumentToken{}, false
	}
	return sid, token, true
}

// upload parses a multipart body bounded by maxUpload and opens one file
// part. The caller must run cleanup.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, field string) (io.Reader, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body"))
		return nil, nil, false
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, field+" is required"))
		return nil, nil, false
	}
	return file, func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, sid id.SessionID, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sid.String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
