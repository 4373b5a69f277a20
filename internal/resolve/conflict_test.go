package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-xref/internal/model"
)

func conflictByType(t *testing.T, report []model.ConflictRecord, typ string) model.ConflictRecord {
	t.Helper()
	for _, c := range report {
		if c.ConflictType == typ {
			return c
		}
	}
	t.Fatalf("no %s row in report", typ)
	return model.ConflictRecord{}
}

func TestDetectConflicts_MultiMatchCountAndPct(t *testing.T) {
	report := DetectConflicts(ConflictInput{
		MultiMatchTies: 2,
		OPRecords:      make([]model.NormalizedRecord, 10),
		PECOSRecords:   make([]model.NormalizedRecord, 10),
		NameTolerance:  0.85,
	})

	mm := conflictByType(t, report, model.ConflictMultiMatch)
	assert.Equal(t, 2, mm.Count)
	assert.InDelta(t, 10.0, mm.PctAffected, 1e-9)
}

func TestDetectConflicts_NameMismatchOnPhoneticLinksOnly(t *testing.T) {
	backbone := []model.NormalizedRecord{
		{Last: "ENKESHAFI"},
		{Last: "SMITH"},
	}
	opRecs := []model.NormalizedRecord{
		{Last: "SMYTHE"}, // disagrees with SMITH below tolerance
		{Last: "ENKESHAFI"},
	}
	opLinks := []model.CandidateLink{
		{SourceRow: 0, BackboneRow: 1, Basis: model.BasisPhonetic},
		{SourceRow: 1, BackboneRow: 0, Basis: model.BasisExactNPI},
	}

	report := DetectConflicts(ConflictInput{
		Backbone:      backbone,
		OPLinks:       opLinks,
		OPRecords:     opRecs,
		NameTolerance: 0.85,
	})

	nm := conflictByType(t, report, model.ConflictNameMismatch)
	assert.Equal(t, 1, nm.Count)
	// Two providers matched, one disagrees.
	assert.InDelta(t, 50.0, nm.PctAffected, 1e-9)
}

func TestDetectConflicts_ExactLinksNeverMismatch(t *testing.T) {
	backbone := []model.NormalizedRecord{{Last: "SMITH"}}
	opRecs := []model.NormalizedRecord{{Last: "COMPLETELY DIFFERENT"}}
	opLinks := []model.CandidateLink{
		{SourceRow: 0, BackboneRow: 0, Basis: model.BasisExactNPI},
	}

	report := DetectConflicts(ConflictInput{
		Backbone:      backbone,
		OPLinks:       opLinks,
		OPRecords:     opRecs,
		NameTolerance: 0.85,
	})

	nm := conflictByType(t, report, model.ConflictNameMismatch)
	assert.Zero(t, nm.Count)
}

func TestDetectConflicts_EmptyInputs(t *testing.T) {
	report := DetectConflicts(ConflictInput{NameTolerance: 0.85})
	require.Len(t, report, 2)
	for _, c := range report {
		assert.Zero(t, c.Count)
		assert.Zero(t, c.PctAffected)
	}
}

func TestCheckBounds(t *testing.T) {
	bounds := Bounds{MaxMultiMatch: 100, MaxNameMismatchPct: 5.0}

	tests := []struct {
		name    string
		report  []model.ConflictRecord
		wantErr string
	}{
		{
			name: "within bounds",
			report: []model.ConflictRecord{
				{ConflictType: model.ConflictMultiMatch, Count: 99},
				{ConflictType: model.ConflictNameMismatch, Count: 3, PctAffected: 4.99},
			},
		},
		{
			name: "multi match at bound",
			report: []model.ConflictRecord{
				{ConflictType: model.ConflictMultiMatch, Count: 100},
			},
			wantErr: "multi_match",
		},
		{
			name: "name mismatch at bound",
			report: []model.ConflictRecord{
				{ConflictType: model.ConflictNameMismatch, Count: 50, PctAffected: 5.0},
			},
			wantErr: "name_mismatch",
		},
		{
			name: "negative count",
			report: []model.ConflictRecord{
				{ConflictType: model.ConflictMultiMatch, Count: -1},
			},
			wantErr: "negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBounds(tt.report, bounds)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckBounds_DisabledWhenZero(t *testing.T) {
	report := []model.ConflictRecord{
		{ConflictType: model.ConflictMultiMatch, Count: 100000},
		{ConflictType: model.ConflictNameMismatch, Count: 9000, PctAffected: 99.0},
	}
	assert.NoError(t, CheckBounds(report, Bounds{}))
}
