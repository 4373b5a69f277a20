package resolve

import (
	"regexp"
	"strings"

	"github.com/sells-group/provider-xref/internal/model"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

const edgePunct = ".,;:-\"'"

// streetAbbrev maps common USPS street-suffix and unit designators to their
// standard abbreviations. Applied to whole tokens only, never substrings.
var streetAbbrev = map[string]string{
	"STREET":    "ST",
	"ST":        "ST",
	"ROAD":      "RD",
	"RD":        "RD",
	"AVENUE":    "AVE",
	"AVE":       "AVE",
	"BOULEVARD": "BLVD",
	"BLVD":      "BLVD",
	"DRIVE":     "DR",
	"DR":        "DR",
	"LANE":      "LN",
	"LN":        "LN",
	"COURT":     "CT",
	"CT":        "CT",
	"PLACE":     "PL",
	"PL":        "PL",
	"APARTMENT": "APT",
	"APT":       "APT",
	"SUITE":     "STE",
	"SUITE.":    "STE",
	"STE":       "STE",
	"FLOOR":     "FL",
	"FL":        "FL",
	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
}

// CleanName canonicalizes a raw name field: uppercase, trimmed, internal
// whitespace collapsed, leading/trailing punctuation stripped. Empty or
// whitespace-only input yields "".
func CleanName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, edgePunct)
	return strings.TrimSpace(s)
}

// CleanStreet canonicalizes a street line: CleanName casing and whitespace
// rules, then whole-token USPS abbreviation folding, with trailing periods
// and commas stripped after substitution.
func CleanStreet(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if abbr, ok := streetAbbrev[tok]; ok {
			tokens[i] = abbr
		}
	}
	out := strings.Trim(strings.Join(tokens, " "), ".,")
	return strings.TrimSpace(out)
}

// CleanCity uppercases, trims, and collapses whitespace. No abbreviation
// folding.
func CleanCity(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// CleanState uppercases and trims. Formats only; it does not authenticate
// against a state code list.
func CleanState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Zip5 strips non-digits and returns the first five digits, handling ZIP+4
// and malformed input uniformly. Fewer than five digits yields "".
func Zip5(s string) string {
	d := DigitsOnly(s)
	if len(d) < 5 {
		return ""
	}
	return d[:5]
}

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// NormalizeRecord runs the full per-record normalization stage: field
// cleaning, NPI checksum validation, and phonetic indexing of the surname
// (organization name for organization-type records). Pure; safe to run
// concurrently across arbitrary row ranges.
func NormalizeRecord(raw model.RawRecord) model.NormalizedRecord {
	last := CleanName(raw.Last)
	if last == "" {
		last = CleanName(raw.Org)
	}

	npi, valid := NormalizeNPI(raw.NPI)

	return model.NormalizedRecord{
		Source:        raw.Source,
		RowID:         raw.RowID,
		NPI:           npi,
		NPIValid:      valid,
		First:         CleanName(raw.First),
		Last:          last,
		Street:        CleanStreet(raw.Street),
		City:          CleanCity(raw.City),
		State:         CleanState(raw.State),
		Zip5:          Zip5(raw.Zip),
		EntityType:    raw.EntityType,
		EnrollmentID:  strings.TrimSpace(raw.EnrollmentID),
		Soundex:       Soundex(last),
		Metaphone:     Metaphone(last),
		PaymentAmount: raw.PaymentAmount,
		PaymentDate:   raw.PaymentDate,
		HasPayment:    raw.HasPayment,
	}
}
