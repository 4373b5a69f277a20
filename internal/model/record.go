package model

import "time"

// Source identifies which government dataset a record came from.
type Source string

const (
	SourceMedicare     Source = "Medicare"
	SourcePECOS        Source = "PECOS"
	SourceOpenPayments Source = "OpenPayments"
)

// EntityType distinguishes individual providers from organizations.
// Empty when the source row carries no hint.
type EntityType string

const (
	EntityIndividual   EntityType = "I"
	EntityOrganization EntityType = "O"
)

// RawRecord is one row from a single source, immutable after load.
type RawRecord struct {
	Source       Source
	RowID        int
	NPI          string
	First        string
	Last         string
	Org          string
	Street       string
	City         string
	State        string
	Zip          string
	EntityType   EntityType
	EnrollmentID string // PECOS only

	// Open Payments only.
	PaymentAmount float64
	PaymentDate   time.Time
	HasPayment    bool
}

// NormalizedRecord is a RawRecord after field normalization, NPI checksum
// validation, and phonetic indexing. Last holds the organization name for
// organization-type records.
type NormalizedRecord struct {
	Source       Source
	RowID        int
	NPI          string // canonical 10 digits, empty when invalid
	NPIValid     bool
	First        string
	Last         string
	Street       string
	City         string
	State        string
	Zip5         string
	EntityType   EntityType
	EnrollmentID string
	Soundex      string
	Metaphone    string

	PaymentAmount float64
	PaymentDate   time.Time
	HasPayment    bool
}

// MatchBasis records how a candidate link was established.
type MatchBasis string

const (
	BasisExactNPI MatchBasis = "exact_npi"
	BasisPhonetic MatchBasis = "phonetic_block"
)

// MatchTier is the confidence classification of a link.
type MatchTier string

const (
	TierMatch    MatchTier = "match"
	TierPossible MatchTier = "possible"
)

// CandidateLink pairs one auxiliary-source record with one backbone record.
// SourceRow and BackboneRow index the stage-scoped record slices the link
// was built from. Transient: consumed by the chain linker and reconciler.
type CandidateLink struct {
	Source      Source
	SourceRow   int
	BackboneRow int
	Basis       MatchBasis
	Score       float64
	Tier        MatchTier
}
