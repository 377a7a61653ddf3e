package domain

// RiskLevel grades how risky the remediation steps are.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

var riskNames = []string{string(RiskLow), string(RiskMedium), string(RiskHigh)}

// Troubleshooting is the remediation plan derived from a classification.
// Steps are expected to hold 4-7 items but only the shape is enforced.
type Troubleshooting struct {
	ProbableCause string    `json:"probable_cause"`
	Steps         []string  `json:"steps"`
	DataNeeded    []string  `json:"data_needed"`
	RiskLevel     RiskLevel `json:"risk_level"`
}

// ParseTroubleshooting validates a mapping into a Troubleshooting plan.
// data_needed defaults to empty and risk_level to Low.
func ParseTroubleshooting(m map[string]any) (Troubleshooting, error) {
	r := newFieldReader("troubleshooting", m)
	ts := Troubleshooting{
		ProbableCause: r.requiredString("probable_cause"),
		Steps:         r.stringList("steps", true),
		DataNeeded:    r.stringList("data_needed", false),
		RiskLevel:     RiskLevel(r.enum("risk_level", riskNames, string(RiskLow))),
	}
	if err := r.err(); err != nil {
		return Troubleshooting{}, err
	}
	return ts, nil
}
