package certification

// Proofs are the boolean proof flags of a phone certification.
type Proofs struct {
	OTPVerified  bool `json:"otp_verified"`
	USSDCaptured bool `json:"ussd_captured"`
	NameMatched  bool `json:"name_matched"`
	SMSAnalyzed  bool `json:"sms_analyzed"`
}

// Flag weights. They sum to 100.
const (
	WeightOTP         = 25
	WeightUSSD        = 25
	WeightNameMatched = 35
	WeightSMS         = 15
)

// TrustScore sums the weights of the true flags.
func TrustScore(p Proofs) int {
	score := 0
	if p.OTPVerified {
		score += WeightOTP
	}
	if p.USSDCaptured {
		score += WeightUSSD
	}
	if p.NameMatched {
		score += WeightNameMatched
	}
	if p.SMSAnalyzed {
		score += WeightSMS
	}
	return score
}

// ProofLevel classifies a trust score.
type ProofLevel string

const (
	ProofLevelNone      ProofLevel = "none"
	ProofLevelLow       ProofLevel = "low"
	ProofLevelMedium    ProofLevel = "medium"
	ProofLevelCertified ProofLevel = "certified"
)

// ClassifyProofLevel is a step function; each threshold is inclusive.
func ClassifyProofLevel(score int) ProofLevel {
	switch {
	case score >= 80:
		return ProofLevelCertified
	case score >= 50:
		return ProofLevelMedium
	case score >= 20:
		return ProofLevelLow
	default:
		return ProofLevelNone
	}
}
