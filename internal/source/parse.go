package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/provider-xref/internal/model"
)

// parseFloat parses a currency-ish field, tolerating $ signs and thousands
// separators. Unparseable input reports ok=false; the record is retained
// without a payment.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// dateLayouts covers the formats seen across CMS exports.
var dateLayouts = []string{"01/02/2006", "2006-01-02"}

// parseDate returns the zero time for empty or unparseable input.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseEntityType folds the source-specific entity hints down to I/O.
// Unrecognized values yield the empty hint.
func parseEntityType(s string) model.EntityType {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case v == "I" || strings.Contains(v, "INDIVIDUAL") || strings.Contains(v, "PHYSICIAN"):
		return model.EntityIndividual
	case v == "O" || strings.Contains(v, "ORGANIZATION") || strings.Contains(v, "HOSPITAL"):
		return model.EntityOrganization
	}
	return ""
}
