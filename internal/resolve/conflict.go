package resolve

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-xref/internal/model"
)

// ConflictInput is the matcher/reconciler intermediate state the detector
// scans. MultiMatchTies comes straight from the matcher, which classifies
// ties before the reconciler sees any link.
type ConflictInput struct {
	MultiMatchTies int

	Backbone     []model.NormalizedRecord
	OPLinks      []model.CandidateLink
	PECOSLinks   []model.CandidateLink
	OPRecords    []model.NormalizedRecord
	PECOSRecords []model.NormalizedRecord

	// NameTolerance is the trigram similarity below which a
	// fallback-matched surname counts as disagreeing with the backbone.
	NameTolerance float64
}

// DetectConflicts emits one report row per conflict category.
// multi_match percentage is taken over all auxiliary records considered;
// name_mismatch percentage over providers with at least one matched
// record. Disagreements are reported, never corrected.
func DetectConflicts(in ConflictInput) []model.ConflictRecord {
	matched := make(map[int]bool)
	mismatched := make(map[int]bool)

	scan := func(links []model.CandidateLink, recs []model.NormalizedRecord) {
		for _, l := range links {
			matched[l.BackboneRow] = true
			if l.Basis != model.BasisPhonetic {
				continue
			}
			bbLast := in.Backbone[l.BackboneRow].Last
			auxLast := recs[l.SourceRow].Last
			if bbLast == "" || auxLast == "" {
				continue
			}
			if TrigramSimilarity(bbLast, auxLast) < in.NameTolerance {
				mismatched[l.BackboneRow] = true
			}
		}
	}
	scan(in.PECOSLinks, in.PECOSRecords)
	scan(in.OPLinks, in.OPRecords)

	totalAux := len(in.OPRecords) + len(in.PECOSRecords)
	return []model.ConflictRecord{
		{
			ConflictType: model.ConflictMultiMatch,
			Count:        in.MultiMatchTies,
			PctAffected:  pct(in.MultiMatchTies, totalAux),
		},
		{
			ConflictType: model.ConflictNameMismatch,
			Count:        len(mismatched),
			PctAffected:  pct(len(mismatched), len(matched)),
		},
	}
}

func pct(n, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(n) / float64(denom) * 100
}

// Bounds are the sanity limits on the conflict report. A breach fails the
// run loudly instead of truncating silently.
type Bounds struct {
	MaxMultiMatch      int
	MaxNameMismatchPct float64
}

// CheckBounds verifies the conflict report against the configured limits.
func CheckBounds(report []model.ConflictRecord, b Bounds) error {
	for _, c := range report {
		if c.Count < 0 {
			return eris.Errorf("conflict: negative count for %s", c.ConflictType)
		}
		switch c.ConflictType {
		case model.ConflictMultiMatch:
			if b.MaxMultiMatch > 0 && c.Count >= b.MaxMultiMatch {
				return eris.Errorf("conflict: multi_match count %d exceeds bound %d", c.Count, b.MaxMultiMatch)
			}
		case model.ConflictNameMismatch:
			if b.MaxNameMismatchPct > 0 && c.PctAffected >= b.MaxNameMismatchPct {
				return eris.Errorf("conflict: name_mismatch %.2f%% exceeds bound %.2f%%", c.PctAffected, b.MaxNameMismatchPct)
			}
		}
	}
	return nil
}
