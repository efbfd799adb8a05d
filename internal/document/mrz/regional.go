package mrz

// UEMOA: West African Economic and Monetary Union.
var uemoa = map[string]bool{
	"BEN": true, "BFA": true, "CIV": true, "GNB": true,
	"MLI": true, "NER": true, "SEN": true, "TGO": true,
}

// CEDEAO (ECOWAS) membership as of the biometric ID card scheme rollout.
// Cards issued before the 2025 withdrawals stay in scope.
var cedeao = map[string]bool{
	"BEN": true, "BFA": true, "CIV": true, "CPV": true, "GHA": true,
	"GIN": true, "GMB": true, "GNB": true, "LBR": true, "MLI": true,
	"NER": true, "NGA": true, "SEN": true, "SLE": true, "TGO": true,
}

// IsUEMOA reports whether an ICAO state code belongs to UEMOA.
func IsUEMOA(state string) bool { return uemoa[state] }

// IsCEDEAO reports whether an ICAO state code belongs to CEDEAO.
func IsCEDEAO(state string) bool { return cedeao[state] }
