// Package certification proves phone ownership and cross-checks the owner's
// name against a mobile-money screenshot.
//
// The flow is an explicit state machine with strict forward order:
//
//	otp -> ussd -> validation -> complete
//
// otp and ussd may be skipped. Skipping leaves the matching proof flags
// false, which lowers the trust score but never blocks progress.
package certification

import (
	"strings"
	"sync"
	"time"

	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
)

// State is a position in the certification flow.
type State string

const (
	StateOTP        State = "otp"
	StateUSSD       State = "ussd"
	StateValidation State = "validation"
	StateComplete   State = "complete"
)

// Event drives a transition.
type Event string

const (
	EventOTPVerified  Event = "otp_verified"
	EventOTPSkipped   Event = "otp_skipped"
	EventUSSDCaptured Event = "ussd_captured"
	EventUSSDSkipped  Event = "ussd_skipped"
	EventCompleted    Event = "completed"
)

var transitions = map[State]map[Event]State{
	StateOTP: {
		EventOTPVerified: StateUSSD,
		EventOTPSkipped:  StateUSSD,
	},
	StateUSSD: {
		EventUSSDCaptured: StateValidation,
		EventUSSDSkipped:  StateValidation,
	},
	StateValidation: {
		EventCompleted: StateComplete,
	},
}

// Next returns the state reached from s on e, or false when e is not allowed in s.
func Next(s State, e Event) (State, bool) {
	to, ok := transitions[s][e]
	return to, ok
}

// MaxCodeLength bounds submitted OTP codes.
const MaxCodeLength = 6

// NameMatchThreshold is the minimum match score for name_matched.
const NameMatchThreshold = 85.0

// OTPStatus tracks the code currently in flight.
type OTPStatus struct {
	Sent        bool
	MaskedPhone string
	ExpiresAt   time.Time
	Attempt     int
}

// Result is the frozen outcome of a completed certification.
type Result struct {
	PhoneNumber    id.PhoneNumber `json:"phone_number"`
	ProofLevel     ProofLevel     `json:"proof_level"`
	TrustScore     int            `json:"trust_score"`
	Proofs         Proofs         `json:"proofs"`
	NameMatchScore *float64       `json:"name_match_score,omitempty"`
	CertifiedAt    time.Time      `json:"certified_at"`
}

// View is a read-only copy of a machine.
type View struct {
	PhoneNumber    id.PhoneNumber
	State          State
	Proofs         Proofs
	TrustScore     int
	ProofLevel     ProofLevel
	OTP            OTPStatus
	ExtractedName  *string
	NameMatchScore *float64
	Result         *Result
}

// Machine holds one phone certification. It performs no I/O; Service feeds
// it collaborator outcomes. Safe for concurrent use.
type Machine struct {
	mu             sync.Mutex
	phone          id.PhoneNumber
	state          State
	proofs         Proofs
	otp            OTPStatus
	extractedName  *string
	nameMatchScore *float64
	result         *Result
}

// NewMachine starts a flow in the otp state.
func NewMachine(phone id.PhoneNumber) *Machine {
	return &Machine{phone: phone, state: StateOTP}
}

func (m *Machine) Phone() id.PhoneNumber { return m.phone }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	score := TrustScore(m.proofs)
	return View{
		PhoneNumber:    m.phone,
		State:          m.state,
		Proofs:         m.proofs,
		TrustScore:     score,
		ProofLevel:     ClassifyProofLevel(score),
		OTP:            m.otp,
		ExtractedName:  m.extractedName,
		NameMatchScore: m.nameMatchScore,
		Result:         m.result,
	}
}

// NeedsDispatch reports whether entering otp should send a code.
func (m *Machine) NeedsDispatch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOTP && !m.otp.Sent && !m.proofs.OTPVerified
}

// RecordDispatch stores a sent code. When resend is false and a code is
// already out it is a no-op, so concurrent automatic dispatches count once.
// A resend invalidates the previous code and restarts the countdown.
//
// Errors: CodeInvalidState outside the otp state.
func (m *Machine) RecordDispatch(maskedPhone string, expiresIn time.Duration, now time.Time, resend bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOTP {
		return invalidState(m.state, "send a code")
	}
	if m.otp.Sent && !resend {
		return nil
	}
	m.otp = OTPStatus{
		Sent:        true,
		MaskedPhone: maskedPhone,
		ExpiresAt:   now.Add(expiresIn),
		Attempt:     m.otp.Attempt + 1,
	}
	return nil
}

// CheckCode validates a code locally before it is sent for verification and
// returns it trimmed.
//
// Errors: CodeValidation for a malformed code; CodeInvalidState outside otp
// or before any code was sent; CodeExpired once the countdown has run out.
func (m *Machine) CheckCode(code string, now time.Time) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > MaxCodeLength {
		return "", dErrors.New(dErrors.CodeValidation, "code must be 1 to 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", dErrors.New(dErrors.CodeValidation, "code must be 1 to 6 digits")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOTP {
		return "", invalidState(m.state, "verify a code")
	}
	if !m.otp.Sent {
		return "", dErrors.New(dErrors.CodeInvalidState, "no code has been sent")
	}
	if !now.Before(m.otp.ExpiresAt) {
		return "", dErrors.New(dErrors.CodeExpired, "code incorrect or expired")
	}
	return code, nil
}

// RecordVerification applies the verification outcome. A rejected code keeps
// the machine in otp so the user can retry or resend.
//
// Errors: CodeValidation when the code was rejected; CodeInvalidState outside otp.
func (m *Machine) RecordVerification(success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOTP {
		return invalidState(m.state, "verify a code")
	}
	if !success {
		return dErrors.New(dErrors.CodeValidation, "code incorrect or expired")
	}
	m.proofs.OTPVerified = true
	return m.fire(EventOTPVerified)
}

// Skip leaves the current step's proofs false and moves on.
//
// Errors: CodeInvalidState from validation or complete.
func (m *Machine) Skip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateOTP:
		return m.fire(EventOTPSkipped)
	case StateUSSD:
		return m.fire(EventUSSDSkipped)
	default:
		return invalidState(m.state, "skip")
	}
}

// Capture is what the visual analyzer returned for a screenshot.
type Capture struct {
	ExtractedName *string  `json:"extracted_name,omitempty"`
	MatchScore    *float64 `json:"match_score,omitempty"`
	CanCertify    bool     `json:"can_certify"`
}

// NameMatched applies the certification rule to a capture.
func (c Capture) NameMatched() bool {
	return c.MatchScore != nil && *c.MatchScore >= NameMatchThreshold && c.CanCertify
}

// RecordCapture applies a screenshot analysis. A nil capture means the
// analyzer failed: both flags stay false and the flow still advances.
//
// Errors: CodeInvalidState outside ussd.
func (m *Machine) RecordCapture(c *Capture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUSSD {
		return invalidState(m.state, "capture a screenshot")
	}
	if c == nil {
		m.proofs.USSDCaptured = false
		m.proofs.NameMatched = false
		return m.fire(EventUSSDSkipped)
	}
	m.proofs.USSDCaptured = true
	m.proofs.NameMatched = c.NameMatched()
	m.extractedName = c.ExtractedName
	m.nameMatchScore = c.MatchScore
	return m.fire(EventUSSDCaptured)
}

// SetSMSAnalyzed records the optional SMS-pattern proof. It counts towards
// the score but no step of this flow produces it.
//
// Errors: CodeInvalidState once the flow is complete.
func (m *Machine) SetSMSAnalyzed(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateComplete {
		return invalidState(m.state, "record sms analysis")
	}
	m.proofs.SMSAnalyzed = v
	return nil
}

// Complete freezes the score and level.
//
// Errors: CodeInvalidState outside validation.
func (m *Machine) Complete(now time.Time) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateValidation {
		return Result{}, invalidState(m.state, "complete certification")
	}
	score := TrustScore(m.proofs)
	res := Result{
		PhoneNumber:    m.phone,
		ProofLevel:     ClassifyProofLevel(score),
		TrustScore:     score,
		Proofs:         m.proofs,
		NameMatchScore: m.nameMatchScore,
		CertifiedAt:    now,
	}
	if err := m.fire(EventCompleted); err != nil {
		return Result{}, err
	}
	m.result = &res
	return res, nil
}

// fire must be called with mu held.
func (m *Machine) fire(e Event) error {
	to, ok := Next(m.state, e)
	if !ok {
		return invalidState(m.state, string(e))
	}
	m.state = to
	return nil
}

func invalidState(s State, action string) error {
	return dErrors.New(dErrors.CodeInvalidState, "cannot "+action+" in state "+string(s))
}
