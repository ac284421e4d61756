package privacy

import "regexp"

// PIIType classifies the kind of sensitive data found
type PIIType string

// Supported PII types
const (
	Phone    PIIType = "Phone"
	Email    PIIType = "Email"
	IDCard   PIIType = "IDCard"
	BankCard PIIType = "BankCard"
	IP       PIIType = "IP"
	APIKey   PIIType = "APIKey"
)

// AllTypes lists every PII type in declaration order
var AllTypes = []PIIType{Phone, Email, IDCard, BankCard, IP, APIKey}

// Tag returns the stable short tag used inside placeholders
func (t PIIType) Tag() string {
	switch t {
	case Phone:
		return "PHONE"
	case Email:
		return "EMAIL"
	case IDCard:
		return "IDCARD"
	case BankCard:
		return "BANKCARD"
	case IP:
		return "IP"
	case APIKey:
		return "APIKEY"
	default:
		return "UNKNOWN"
	}
}

// ParseType resolves a type from its name or its placeholder tag
func ParseType(s string) (PIIType, bool) {
	for _, t := range AllTypes {
		if string(t) == s || t.Tag() == s {
			return t, true
		}
	}
	return "", false
}

// Validator is a secondary check run on a candidate match
type Validator func(value string) bool

// Pattern is one compiled detector in the registry
type Pattern struct {
	Type      PIIType
	Regex     *regexp.Regexp
	Priority  int
	Validator Validator
}

// PatternSpec is the uncompiled form of a Pattern
type PatternSpec struct {
	Type      PIIType
	Expr      string
	Priority  int
	Validator Validator
}

// Item is a single detected occurrence. Start and End are byte offsets
// into the scanned text, End exclusive.
type Item struct {
	Type  PIIType `json:"piiType"`
	Value string  `json:"value"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// ScanResult holds the accepted items ordered by Start
type ScanResult struct {
	HasPII bool   `json:"hasPii"`
	Items  []Item `json:"items"`
}

// Counts returns the number of items per type
func (r ScanResult) Counts() map[PIIType]int {
	counts := make(map[PIIType]int)
	for _, item := range r.Items {
		counts[item.Type]++
	}
	return counts
}

// MaskMapping maps placeholder tokens to the literals they replaced
type MaskMapping struct {
	Mappings map[string]string `json:"mappings"`
}

// Len returns the number of placeholders in the mapping
func (m MaskMapping) Len() int {
	return len(m.Mappings)
}

// MaskResult contains masked text, its mapping and the scan it came from
type MaskResult struct {
	Masked     string      `json:"masked"`
	Mapping    MaskMapping `json:"mapping"`
	ScanResult ScanResult  `json:"scanResult"`
}
