package resolve

import (
	"go.uber.org/zap"

	"github.com/sells-group/provider-xref/internal/model"
)

// Fallback score weights: first-initial and first-name-prefix agreement
// plus street-line trigram similarity.
const (
	weightFirstInitial = 0.4
	weightFirstPrefix  = 0.2
	weightStreet       = 0.4
)

// MatchConfig holds the fallback matching policy thresholds. The cutoff is
// a policy decision, not a derivable fact; the default lives in config.
type MatchConfig struct {
	// MinScore is the minimum fallback score required to emit a link.
	MinScore float64
}

// blockKey groups records that may refer to the same person despite
// spelling variants: both phonetic codes of the surname plus the state.
type blockKey struct {
	soundex   string
	metaphone string
	state     string
}

// Matcher links auxiliary-source records to backbone (Medicare) records.
// The NPI index and the phonetic blocking index are built once, after all
// backbone normalization has completed, and are read-only thereafter, so a
// single Matcher is safe for concurrent Match calls.
type Matcher struct {
	cfg      MatchConfig
	backbone []model.NormalizedRecord
	byNPI    map[string][]int
	blocks   map[blockKey][]int
}

// NewMatcher builds the backbone indexes. Callers must not mutate backbone
// after handoff.
func NewMatcher(backbone []model.NormalizedRecord, cfg MatchConfig) *Matcher {
	m := &Matcher{
		cfg:      cfg,
		backbone: backbone,
		byNPI:    make(map[string][]int),
		blocks:   make(map[blockKey][]int),
	}
	for i, rec := range backbone {
		if rec.NPIValid {
			m.byNPI[rec.NPI] = append(m.byNPI[rec.NPI], i)
		}
		if rec.Soundex != "" && rec.Metaphone != "" && rec.State != "" {
			k := blockKey{rec.Soundex, rec.Metaphone, rec.State}
			m.blocks[k] = append(m.blocks[k], i)
		}
	}
	return m
}

// MatchResult is the outcome of linking one auxiliary source against the
// backbone. Ties are classified here, before any link reaches the
// reconciler: a tied record contributes to MultiMatchTies and never to
// Links.
type MatchResult struct {
	Links          []model.CandidateLink
	MultiMatchTies int
	Unlinked       int
}

// Match links every auxiliary record to at most one backbone record:
// exact canonical-NPI join first, phonetic+geographic fallback otherwise.
// A record below the fallback threshold stays unlinked; that is a
// legitimate outcome, not an error.
func (m *Matcher) Match(aux []model.NormalizedRecord) MatchResult {
	var res MatchResult
	for i, rec := range aux {
		if bb, ok := m.exactMatch(rec); ok {
			res.Links = append(res.Links, model.CandidateLink{
				Source:      rec.Source,
				SourceRow:   i,
				BackboneRow: bb,
				Basis:       model.BasisExactNPI,
				Score:       1.0,
				Tier:        model.TierMatch,
			})
			continue
		}

		switch bb, score, outcome := m.fallbackMatch(rec); outcome {
		case fallbackLinked:
			res.Links = append(res.Links, model.CandidateLink{
				Source:      rec.Source,
				SourceRow:   i,
				BackboneRow: bb,
				Basis:       model.BasisPhonetic,
				Score:       score,
				Tier:        model.TierPossible,
			})
		case fallbackTie:
			res.MultiMatchTies++
		case fallbackNone:
			res.Unlinked++
		}
	}

	zap.L().Debug("matching complete",
		zap.Int("aux_records", len(aux)),
		zap.Int("links", len(res.Links)),
		zap.Int("ties", res.MultiMatchTies),
		zap.Int("unlinked", res.Unlinked),
	)
	return res
}

// exactMatch resolves rec against the canonical-NPI index. Entity type
// must be consistent: equal, or absent on either side. An NPI shared by
// both partitions with no type hint on rec resolves to the individual
// partition.
func (m *Matcher) exactMatch(rec model.NormalizedRecord) (int, bool) {
	if !rec.NPIValid {
		return 0, false
	}
	best := -1
	for _, i := range m.byNPI[rec.NPI] {
		bt := m.backbone[i].EntityType
		if rec.EntityType != "" && bt != "" && rec.EntityType != bt {
			continue
		}
		if best < 0 || m.backbone[i].EntityType < m.backbone[best].EntityType {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

type fallbackOutcome int

const (
	fallbackNone fallbackOutcome = iota
	fallbackLinked
	fallbackTie
)

// fallbackMatch blocks on (soundex, metaphone, state) and scores within
// the block. The tie-break policy is explicit: a single best-scoring
// candidate at or above MinScore links; an exact score tie is a
// multi-match conflict and no link is emitted.
func (m *Matcher) fallbackMatch(rec model.NormalizedRecord) (int, float64, fallbackOutcome) {
	if rec.Soundex == "" || rec.Metaphone == "" || rec.State == "" {
		return 0, 0, fallbackNone
	}

	best := -1
	bestScore := 0.0
	tied := 0
	for _, i := range m.blocks[blockKey{rec.Soundex, rec.Metaphone, rec.State}] {
		bb := m.backbone[i]
		if rec.EntityType != "" && bb.EntityType != "" && rec.EntityType != bb.EntityType {
			continue
		}
		s := fallbackScore(rec, bb)
		switch {
		case best < 0 || s > bestScore:
			best, bestScore, tied = i, s, 1
		case s == bestScore:
			tied++
		}
	}

	switch {
	case best < 0 || bestScore < m.cfg.MinScore:
		return 0, 0, fallbackNone
	case tied > 1:
		return 0, 0, fallbackTie
	}
	return best, bestScore, fallbackLinked
}

// fallbackScore scores agreement between an auxiliary record and a
// backbone record that share a phonetic block.
func fallbackScore(aux, bb model.NormalizedRecord) float64 {
	s := 0.0
	if aux.First != "" && bb.First != "" && aux.First[0] == bb.First[0] {
		s += weightFirstInitial
		if prefix3(aux.First) == prefix3(bb.First) {
			s += weightFirstPrefix
		}
	}
	s += weightStreet * TrigramSimilarity(aux.Street, bb.Street)
	return s
}

func prefix3(s string) string {
	if len(s) > 3 {
		return s[:3]
	}
	return s
}
