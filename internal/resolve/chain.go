package resolve

import "github.com/sells-group/provider-xref/internal/model"

// BuildChains composes pairwise links into end-to-end transitive chains:
// one row per Open Payments record associated with a backbone provider.
// The PECOS hop appears in the path whenever the backbone row carries any
// PECOS link; the enrollment identifier is set only when that link
// resolved one (a full chain). Identifier-less PECOS linkage still counts
// for coverage but not as a full chain.
func BuildChains(
	opLinks, pecosLinks []model.CandidateLink,
	pecosRecs []model.NormalizedRecord,
	providerIDByRow map[int]string,
) []model.LinkageChain {
	enrollment := make(map[int]string)
	pecosLinked := make(map[int]bool)
	for _, l := range pecosLinks {
		pecosLinked[l.BackboneRow] = true
		if enrollment[l.BackboneRow] == "" {
			enrollment[l.BackboneRow] = pecosRecs[l.SourceRow].EnrollmentID
		}
	}

	chains := make([]model.LinkageChain, 0, len(opLinks))
	for _, l := range opLinks {
		pid, ok := providerIDByRow[l.BackboneRow]
		if !ok {
			continue
		}
		row := model.LinkageChain{
			ProviderID:  pid,
			MatchTier:   l.Tier,
			LinkagePath: model.PathOPMedicare,
		}
		if pecosLinked[l.BackboneRow] {
			row.LinkagePath = model.PathOPMedicarePECOS
			row.EnrollmentID = enrollment[l.BackboneRow]
		}
		chains = append(chains, row)
	}
	return chains
}
