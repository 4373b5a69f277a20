package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/provider-xref/internal/config"
	"github.com/sells-group/provider-xref/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "xref.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testArtifacts(runID string) *Artifacts {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Artifacts{
		Entities: []model.ProviderEntity{
			{
				ProviderID:      "pid-1",
				NPI:             "1003000126",
				EntityType:      model.EntityIndividual,
				FirstMed:        "ARDALAN",
				LastMed:         "ENKESHAFI",
				StateMed:        "MD",
				FirstReconciled: "ARDALAN",
				LastReconciled:  "ENKESHAFI",
				StateReconciled: "MD",
				HasOPPayments:   true,
				LinkageCoverage: 1,
				DataSources:     "Medicare,OpenPayments",
			},
			{
				ProviderID:         "pid-2",
				NPI:                "1497758544",
				EntityType:         model.EntityOrganization,
				LastMed:            "CUMBERLAND CLINIC",
				StateMed:           "TN",
				LastReconciled:     "CUMBERLAND CLINIC",
				StateReconciled:    "TN",
				HasPECOSEnrollment: true,
				LinkageCoverage:    1,
				DataSources:        "Medicare,PECOS",
			},
		},
		Chains: []model.LinkageChain{
			{ProviderID: "pid-1", MatchTier: model.TierMatch, LinkagePath: model.PathOPMedicare},
		},
		Payments: []model.PaymentAggregate{
			{
				ProviderID:       "pid-1",
				SumPayment:       1250.50,
				MaxPayment:       1000,
				NPayments:        2,
				FirstPaymentDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
				LastPaymentDate:  time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
			},
		},
		Conflicts: []model.ConflictRecord{
			{ConflictType: model.ConflictMultiMatch, Count: 1, PctAffected: 0.5},
		},
		Summary: model.RunSummary{
			ID:          runID,
			Status:      model.RunStatusSucceeded,
			EntityCount: 2, ChainCount: 1, PaymentCount: 1,
			MultiMatchCount: 1, NameMismatchPct: 0.2,
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
		},
	}
}

func TestSQLiteStore_PublishAndQuery(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishRun(ctx, testArtifacts("run-1")))

	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "pid-1", entities[0].ProviderID)
	assert.Equal(t, model.EntityIndividual, entities[0].EntityType)
	assert.True(t, entities[0].HasOPPayments)
	assert.False(t, entities[0].HasPECOSEnrollment)
	assert.Equal(t, "Medicare,OpenPayments", entities[0].DataSources)
	assert.Equal(t, "", entities[1].FirstMed)
	assert.True(t, entities[1].HasPECOSEnrollment)

	chains, err := s.Chains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, model.PathOPMedicare, chains[0].LinkagePath)
	assert.Equal(t, "", chains[0].EnrollmentID)

	payments, err := s.Payments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.InDelta(t, 1250.50, payments[0].SumPayment, 1e-9)
	assert.Equal(t, 2, payments[0].NPayments)
	assert.Equal(t, 2025, payments[0].FirstPaymentDate.Year())

	conflicts, err := s.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictMultiMatch, conflicts[0].ConflictType)
}

func TestSQLiteStore_PublishReplacesPreviousRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishRun(ctx, testArtifacts("run-1")))

	second := testArtifacts("run-2")
	second.Entities = second.Entities[:1]
	second.Payments = nil
	second.Summary.EntityCount = 1
	second.Summary.StartedAt = second.Summary.StartedAt.Add(24 * time.Hour)
	second.Summary.FinishedAt = second.Summary.FinishedAt.Add(24 * time.Hour)
	require.NoError(t, s.PublishRun(ctx, second))

	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 1)

	payments, err := s.Payments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestSQLiteStore_ListRunsBreaksTimestampTies(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.RecordFailure(ctx, model.RunSummary{
			ID: id, Status: model.RunStatusFailed, Error: "medicare extract is empty",
			StartedAt: at, FinishedAt: at,
		}))
	}

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[2].ID)
}

func TestSQLiteStore_LastSuccessfulRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	last, err := s.LastSuccessfulRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, s.PublishRun(ctx, testArtifacts("run-1")))
	require.NoError(t, s.RecordFailure(ctx, model.RunSummary{
		ID:         "run-2",
		Status:     model.RunStatusFailed,
		Error:      "open payments file vanished",
		StartedAt:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC),
	}))

	last, err = s.LastSuccessfulRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)
	assert.Equal(t, 2, last.EntityCount)
}

func TestSQLiteStore_RecordFailureKeepsArtifacts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishRun(ctx, testArtifacts("run-1")))
	require.NoError(t, s.RecordFailure(ctx, model.RunSummary{
		ID:         "run-2",
		Status:     model.RunStatusFailed,
		Error:      "row collapse",
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}))

	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "row collapse", runs[0].Error)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StoreConfig{Driver: "mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
