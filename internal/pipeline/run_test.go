package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/provider-xref/internal/config"
	"github.com/sells-group/provider-xref/internal/model"
	"github.com/sells-group/provider-xref/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	medicareHeader = "Rndrng_NPI,Rndrng_Prvdr_First_Name,Rndrng_Prvdr_Last_Org_Name,Rndrng_Prvdr_St1,Rndrng_Prvdr_City,Rndrng_Prvdr_State_Abrvtn,Rndrng_Prvdr_Zip5,Rndrng_Prvdr_Ent_Cd"
	pecosHeader    = "NPI,FIRST_NAME,LAST_NAME,ORG_NAME,STATE_CD,ENRLMT_ID,PROVIDER_TYPE_CD"
	opHeader       = "Covered_Recipient_NPI,Covered_Recipient_First_Name,Covered_Recipient_Last_Name,Recipient_Primary_Business_Street_Address_Line1,Recipient_City,Recipient_State,Recipient_Zip_Code,Covered_Recipient_Type,Total_Amount_of_Payment_USDollars,Date_of_Payment"
)

func writeCSV(t *testing.T, dir, name, header string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := header + "\n" + strings.Join(rows, "\n")
	if len(rows) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "xref.db"),
		},
		Match: config.MatchConfig{
			MinScore:           0.70,
			NameTolerance:      0.85,
			MaxMultiMatch:      100,
			MaxNameMismatchPct: 5.0,
			Workers:            2,
			MinRowRatio:        0.5,
		},
	}, dir
}

func newTestPipeline(t *testing.T, cfg *config.Config) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return New(cfg, st), st
}

// seedHappyPath writes three consistent extracts: two valid backbone
// providers plus one with a bad NPI checksum, a PECOS enrollment for the
// clinic, and three Open Payments rows (one exact individual match, one
// exact organization match, one phonetic fallback with no NPI).
func seedHappyPath(t *testing.T, cfg *config.Config, dir string) {
	cfg.Inputs.Medicare = writeCSV(t, dir, "medicare.csv", medicareHeader,
		"1003000126,Ardalan,Enkeshafi,123 Main Street,Bethesda,MD,20814,I",
		"1234567893,,Cumberland Clinic,10 Oak Avenue,Nashville,TN,37203,O",
		"1234567890,Bad,Checksum,1 Err St,Nowhere,ZZ,00000,I",
	)
	cfg.Inputs.PECOS = writeCSV(t, dir, "pecos.csv", pecosHeader,
		"1234567893,,,CUMBERLAND CLINIC,TN,O20040610000001,O",
	)
	cfg.Inputs.OpenPayments = writeCSV(t, dir, "open_payments.csv", opHeader,
		`1003000126,Ardalan,Enkeshafi,123 Main St,Bethesda,MD,20814,Physician,"$500.00",01/15/2025`,
		`1234567893,,Cumberland Clinic,10 Oak Ave,Nashville,TN,37203,Hospital,"1,000.00",06/30/2025`,
		",Ardalan,Enkeshafi,123 Main St,Bethesda,MD,20814,Physician,250.00,02/20/2025",
	)
}

func TestPipelineRun_HappyPath(t *testing.T) {
	cfg, dir := testConfig(t)
	seedHappyPath(t, cfg, dir)
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	summary, err := p.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 2, summary.EntityCount)
	assert.Equal(t, 3, summary.ChainCount)
	assert.Equal(t, 0, summary.MultiMatchCount)

	entities, err := st.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	ind := entities[0]
	assert.Equal(t, "1003000126", ind.NPI)
	assert.Equal(t, model.EntityIndividual, ind.EntityType)
	assert.Equal(t, "ARDALAN", ind.FirstMed)
	assert.Equal(t, "ENKESHAFI", ind.LastMed)
	assert.Equal(t, "MD", ind.StateMed)
	assert.True(t, ind.HasOPPayments)
	assert.False(t, ind.HasPECOSEnrollment)
	assert.Equal(t, 1, ind.LinkageCoverage)
	assert.Equal(t, "Medicare,OpenPayments", ind.DataSources)

	org := entities[1]
	assert.Equal(t, "1234567893", org.NPI)
	assert.Equal(t, model.EntityOrganization, org.EntityType)
	assert.Equal(t, "", org.FirstMed)
	assert.Equal(t, "CUMBERLAND CLINIC", org.LastMed)
	assert.True(t, org.HasOPPayments)
	assert.True(t, org.HasPECOSEnrollment)
	assert.Equal(t, 2, org.LinkageCoverage)
	assert.Equal(t, "Medicare,PECOS,OpenPayments", org.DataSources)

	chains, err := st.Chains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 3)
	var fullChains, partialChains int
	for _, c := range chains {
		switch c.LinkagePath {
		case model.PathOPMedicarePECOS:
			fullChains++
			assert.Equal(t, org.ProviderID, c.ProviderID)
			assert.Equal(t, "O20040610000001", c.EnrollmentID)
		case model.PathOPMedicare:
			partialChains++
			assert.Equal(t, ind.ProviderID, c.ProviderID)
			assert.Equal(t, "", c.EnrollmentID)
		}
	}
	assert.Equal(t, 1, fullChains)
	assert.Equal(t, 2, partialChains)

	payments, err := st.Payments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	byPID := map[string]model.PaymentAggregate{}
	for _, p := range payments {
		byPID[p.ProviderID] = p
	}
	indPay := byPID[ind.ProviderID]
	assert.InDelta(t, 750.0, indPay.SumPayment, 1e-9)
	assert.InDelta(t, 500.0, indPay.MaxPayment, 1e-9)
	assert.Equal(t, 2, indPay.NPayments)
	assert.Equal(t, 2025, indPay.FirstPaymentDate.Year())
	orgPay := byPID[org.ProviderID]
	assert.InDelta(t, 1000.0, orgPay.SumPayment, 1e-9)
	assert.Equal(t, 1, orgPay.NPayments)

	conflicts, err := st.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		assert.Zero(t, c.Count)
	}
}

func TestPipelineRun_Idempotent(t *testing.T) {
	cfg, dir := testConfig(t)
	seedHappyPath(t, cfg, dir)
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	_, err := p.Run(ctx, false)
	require.NoError(t, err)
	first, err := st.Entities(ctx)
	require.NoError(t, err)

	_, err = p.Run(ctx, false)
	require.NoError(t, err)
	second, err := st.Entities(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestPipelineRun_DryRunDoesNotPublish(t *testing.T) {
	cfg, dir := testConfig(t)
	seedHappyPath(t, cfg, dir)
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	summary, err := p.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 2, summary.EntityCount)

	entities, err := st.Entities(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPipelineRun_EmptyBackboneFails(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Inputs.Medicare = writeCSV(t, dir, "medicare.csv", medicareHeader)
	cfg.Inputs.PECOS = writeCSV(t, dir, "pecos.csv", pecosHeader)
	cfg.Inputs.OpenPayments = writeCSV(t, dir, "open_payments.csv", opHeader)
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	summary, err := p.Run(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
	assert.Equal(t, model.RunStatusFailed, summary.Status)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestPipelineRun_SchemaDriftFails(t *testing.T) {
	cfg, dir := testConfig(t)
	seedHappyPath(t, cfg, dir)
	cfg.Inputs.Medicare = writeCSV(t, dir, "renamed.csv",
		"NPI_Number,First,Last,Street,City,State,Zip,Type",
		"1003000126,Ardalan,Enkeshafi,123 Main Street,Bethesda,MD,20814,I",
	)
	p, _ := newTestPipeline(t, cfg)

	_, err := p.Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema drift")
}

func TestPipelineRun_RowCollapseRefusesPublish(t *testing.T) {
	cfg, dir := testConfig(t)
	seedHappyPath(t, cfg, dir)
	cfg.Match.MinRowRatio = 0.6
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	_, err := p.Run(ctx, false)
	require.NoError(t, err)

	// Second run loses half the backbone.
	cfg.Inputs.Medicare = writeCSV(t, dir, "medicare_truncated.csv", medicareHeader,
		"1003000126,Ardalan,Enkeshafi,123 Main Street,Bethesda,MD,20814,I",
	)
	summary, err := p.Run(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to publish")
	assert.Equal(t, model.RunStatusFailed, summary.Status)

	entities, err := st.Entities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestPipelineRun_MultiMatchBoundFails(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Match.MaxMultiMatch = 1
	cfg.Inputs.Medicare = writeCSV(t, dir, "medicare.csv", medicareHeader,
		"1000000004,John,Smith,1 Elm St,Fresno,CA,93701,I",
		"1000000012,John,Smith,1 Elm St,Fresno,CA,93701,I",
	)
	cfg.Inputs.PECOS = writeCSV(t, dir, "pecos.csv", pecosHeader)
	cfg.Inputs.OpenPayments = writeCSV(t, dir, "open_payments.csv", opHeader,
		",Jane,Smith,1 Elm St,Fresno,CA,93701,Physician,100.00,03/01/2025",
	)
	p, st := newTestPipeline(t, cfg)
	ctx := context.Background()

	summary, err := p.Run(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi_match")
	assert.Equal(t, model.RunStatusFailed, summary.Status)

	entities, err := st.Entities(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)
}
