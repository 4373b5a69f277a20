package resolve

import (
	"sort"

	"github.com/sells-group/provider-xref/internal/model"
)

// AggregatePayments rolls up Open Payments amounts per linked provider:
// sum, max, count, and the payment date range. Rows without a payment or
// with a negative amount are skipped. Output is ordered by provider id so
// identical inputs always publish identical tables.
func AggregatePayments(
	opLinks []model.CandidateLink,
	opRecs []model.NormalizedRecord,
	providerIDByRow map[int]string,
) []model.PaymentAggregate {
	agg := make(map[string]*model.PaymentAggregate)

	for _, l := range opLinks {
		pid, ok := providerIDByRow[l.BackboneRow]
		if !ok {
			continue
		}
		rec := opRecs[l.SourceRow]
		if !rec.HasPayment || rec.PaymentAmount < 0 {
			continue
		}

		a := agg[pid]
		if a == nil {
			a = &model.PaymentAggregate{ProviderID: pid}
			agg[pid] = a
		}
		a.SumPayment += rec.PaymentAmount
		if rec.PaymentAmount > a.MaxPayment {
			a.MaxPayment = rec.PaymentAmount
		}
		a.NPayments++
		if !rec.PaymentDate.IsZero() {
			if a.FirstPaymentDate.IsZero() || rec.PaymentDate.Before(a.FirstPaymentDate) {
				a.FirstPaymentDate = rec.PaymentDate
			}
			if a.LastPaymentDate.IsZero() || rec.PaymentDate.After(a.LastPaymentDate) {
				a.LastPaymentDate = rec.PaymentDate
			}
		}
	}

	out := make([]model.PaymentAggregate, 0, len(agg))
	for _, a := range agg {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}
