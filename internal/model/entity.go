package model

import "time"

// ProviderEntity is one row of the unified provider table: one entity per
// canonical NPI within an entity-type partition.
type ProviderEntity struct {
	ProviderID string
	NPI        string
	EntityType EntityType

	FirstMed string
	LastMed  string
	StateMed string

	FirstReconciled string
	LastReconciled  string
	StateReconciled string

	HasOPPayments      bool
	HasPECOSEnrollment bool
	LinkageCoverage    int
	DataSources        string
}

// Linkage path tokens for the transitive chain table.
const (
	PathOPMedicare      = "op->medicare"
	PathOPMedicarePECOS = "op->medicare->pecos"
)

// LinkageChain is one row of the transitive chain table: an Open Payments
// record associated with a backbone provider, with the PECOS hop when one
// resolved. EnrollmentID is set only for full chains.
type LinkageChain struct {
	ProviderID   string
	MatchTier    MatchTier
	EnrollmentID string
	LinkagePath  string
}

// PaymentAggregate rolls up Open Payments rows for one linked provider.
type PaymentAggregate struct {
	ProviderID       string
	SumPayment       float64
	MaxPayment       float64
	NPayments        int
	FirstPaymentDate time.Time
	LastPaymentDate  time.Time
}

// Conflict categories emitted by the conflict detector.
const (
	ConflictMultiMatch   = "multi_match"
	ConflictNameMismatch = "name_mismatch"
)

// ConflictRecord is one row of the conflict report.
type ConflictRecord struct {
	ConflictType string
	Count        int
	PctAffected  float64
}
