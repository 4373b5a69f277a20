package resolve

import (
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/provider-xref/internal/model"
)

// providerNamespace is the fixed namespace for deterministic provider
// surrogate keys. Never change it: provider_id stability across runs
// depends on it.
var providerNamespace = uuid.MustParse("b6f9a1d4-3f6e-4c8a-9a2e-5d1c7e8b4f02")

// ProviderID derives the stable surrogate key for a canonical NPI within
// an entity-type partition. Content-addressed, so re-running the pipeline
// on unchanged inputs assigns identical keys.
func ProviderID(npi string, et model.EntityType) string {
	return uuid.NewSHA1(providerNamespace, []byte(npi+"|"+string(et))).String()
}

// ReconcileResult carries the unified entities plus the backbone-row to
// provider-id mapping the chain linker and aggregator key off.
type ReconcileResult struct {
	Entities        []model.ProviderEntity
	ProviderIDByRow map[int]string

	SkippedInvalidNPI int
	SkippedDuplicates int
}

// Reconcile merges every backbone record and its resolved links into one
// ProviderEntity per (NPI, entity type). Medicare values win verbatim
// whenever present; only empty Medicare fields fall back to the
// best-scoring matched record. PECOS links are applied before Open
// Payments links so the enrollment registry wins fallback ties.
//
// Backbone rows with an invalid NPI cannot anchor a canonical identity and
// are skipped (counted, not an error). Duplicate (NPI, entity type) rows
// keep the first occurrence.
func Reconcile(
	backbone []model.NormalizedRecord,
	opLinks, pecosLinks []model.CandidateLink,
	opRecs, pecosRecs []model.NormalizedRecord,
) ReconcileResult {
	res := ReconcileResult{ProviderIDByRow: make(map[int]string, len(backbone))}
	index := make(map[string]int, len(backbone))

	for i, rec := range backbone {
		if !rec.NPIValid {
			res.SkippedInvalidNPI++
			continue
		}
		pid := ProviderID(rec.NPI, rec.EntityType)
		res.ProviderIDByRow[i] = pid
		if _, dup := index[pid]; dup {
			res.SkippedDuplicates++
			continue
		}

		first := rec.First
		if rec.EntityType == model.EntityOrganization {
			first = ""
		}
		index[pid] = len(res.Entities)
		res.Entities = append(res.Entities, model.ProviderEntity{
			ProviderID:      pid,
			NPI:             rec.NPI,
			EntityType:      rec.EntityType,
			FirstMed:        first,
			LastMed:         rec.Last,
			StateMed:        rec.State,
			FirstReconciled: first,
			LastReconciled:  rec.Last,
			StateReconciled: rec.State,
		})
	}

	type bestMatch struct {
		score float64
		rec   model.NormalizedRecord
	}
	best := make(map[string]bestMatch)

	for _, l := range pecosLinks {
		pid, ok := res.ProviderIDByRow[l.BackboneRow]
		if !ok {
			continue
		}
		res.Entities[index[pid]].HasPECOSEnrollment = true
		if b, seen := best[pid]; !seen || l.Score > b.score {
			best[pid] = bestMatch{l.Score, pecosRecs[l.SourceRow]}
		}
	}
	for _, l := range opLinks {
		pid, ok := res.ProviderIDByRow[l.BackboneRow]
		if !ok {
			continue
		}
		res.Entities[index[pid]].HasOPPayments = true
		if b, seen := best[pid]; !seen || l.Score > b.score {
			best[pid] = bestMatch{l.Score, opRecs[l.SourceRow]}
		}
	}

	// Fallback fill: only fields Medicare left empty.
	for pid, b := range best {
		e := &res.Entities[index[pid]]
		if e.LastReconciled == "" {
			e.LastReconciled = b.rec.Last
		}
		if e.StateReconciled == "" {
			e.StateReconciled = b.rec.State
		}
		if e.FirstReconciled == "" && e.EntityType != model.EntityOrganization {
			e.FirstReconciled = b.rec.First
		}
	}

	for i := range res.Entities {
		e := &res.Entities[i]
		e.LinkageCoverage = 0
		if e.HasOPPayments {
			e.LinkageCoverage++
		}
		if e.HasPECOSEnrollment {
			e.LinkageCoverage++
		}
		e.DataSources = dataSources(e.HasPECOSEnrollment, e.HasOPPayments)
	}

	return res
}

// dataSources renders the contributing source list in fixed preferred
// order. Medicare anchors every entity and is always first.
func dataSources(hasPECOS, hasOP bool) string {
	srcs := []string{string(model.SourceMedicare)}
	if hasPECOS {
		srcs = append(srcs, string(model.SourcePECOS))
	}
	if hasOP {
		srcs = append(srcs, string(model.SourceOpenPayments))
	}
	return strings.Join(srcs, ",")
}
