package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/provider-xref/internal/model"
	"github.com/sells-group/provider-xref/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the published artifact tables",
	Long:  "Writes the last published run's artifacts either as one CSV per table or as a single XLSX workbook with one sheet per table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tables, err := fetchTables(ctx, st)
		if err != nil {
			return err
		}

		switch format {
		case "csv":
			return exportCSV(out, tables)
		case "xlsx":
			return exportXLSX(out, tables)
		}
		return eris.Errorf("export: unknown format %q", format)
	},
}

func init() {
	exportCmd.Flags().String("out", "export", "output directory (csv) or file (xlsx)")
	exportCmd.Flags().String("format", "csv", "export format: csv or xlsx")
	rootCmd.AddCommand(exportCmd)
}

// exportTable is one artifact table rendered to rows of strings.
type exportTable struct {
	name   string
	header []string
	rows   [][]string
}

func fetchTables(ctx context.Context, st store.Store) ([]exportTable, error) {
	entities, err := st.Entities(ctx)
	if err != nil {
		return nil, err
	}
	chains, err := st.Chains(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := st.Payments(ctx)
	if err != nil {
		return nil, err
	}
	conflicts, err := st.Conflicts(ctx)
	if err != nil {
		return nil, err
	}
	return []exportTable{
		entitiesTable(entities),
		chainsTable(chains),
		paymentsTable(payments),
		conflictsTable(conflicts),
	}, nil
}

func entitiesTable(entities []model.ProviderEntity) exportTable {
	t := exportTable{
		name: "provider_entities",
		header: []string{
			"provider_id", "npi", "entity_type",
			"first_med", "last_med", "state_med",
			"first_name_reconciled", "last_name_reconciled", "state_reconciled",
			"has_op_payments", "has_pecos_enrollment", "linkage_coverage", "data_sources",
		},
	}
	for _, e := range entities {
		t.rows = append(t.rows, []string{
			e.ProviderID, e.NPI, string(e.EntityType),
			e.FirstMed, e.LastMed, e.StateMed,
			e.FirstReconciled, e.LastReconciled, e.StateReconciled,
			strconv.FormatBool(e.HasOPPayments), strconv.FormatBool(e.HasPECOSEnrollment),
			strconv.Itoa(e.LinkageCoverage), e.DataSources,
		})
	}
	return t
}

func chainsTable(chains []model.LinkageChain) exportTable {
	t := exportTable{
		name:   "transitive_links",
		header: []string{"provider_id", "match_tier", "enrlmt_id", "linkage_path"},
	}
	for _, c := range chains {
		t.rows = append(t.rows, []string{
			c.ProviderID, string(c.MatchTier), c.EnrollmentID, c.LinkagePath,
		})
	}
	return t
}

func paymentsTable(payments []model.PaymentAggregate) exportTable {
	t := exportTable{
		name: "provider_payments",
		header: []string{
			"provider_id", "sum_payment", "max_payment", "n_payments",
			"first_payment_date", "last_payment_date",
		},
	}
	for _, p := range payments {
		t.rows = append(t.rows, []string{
			p.ProviderID,
			strconv.FormatFloat(p.SumPayment, 'f', 2, 64),
			strconv.FormatFloat(p.MaxPayment, 'f', 2, 64),
			strconv.Itoa(p.NPayments),
			formatDate(p.FirstPaymentDate),
			formatDate(p.LastPaymentDate),
		})
	}
	return t
}

func conflictsTable(conflicts []model.ConflictRecord) exportTable {
	t := exportTable{
		name:   "data_quality_conflicts",
		header: []string{"conflict_type", "count", "pct_affected"},
	}
	for _, c := range conflicts {
		t.rows = append(t.rows, []string{
			c.ConflictType, strconv.Itoa(c.Count),
			strconv.FormatFloat(c.PctAffected, 'f', 2, 64),
		})
	}
	return t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// exportCSV writes one CSV file per table into dir.
func exportCSV(dir string, tables []exportTable) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: mkdir %s", dir)
	}
	for _, t := range tables {
		path := filepath.Join(dir, t.name+".csv")
		if err := writeCSVFile(path, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d rows)\n", path, len(t.rows))
	}
	return nil
}

func writeCSVFile(path string, t exportTable) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		return eris.Wrapf(err, "export: write %s header", t.name)
	}
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "export: write %s row", t.name)
		}
	}
	w.Flush()
	return eris.Wrapf(w.Error(), "export: flush %s", t.name)
}

// exportXLSX writes all tables into one workbook, one sheet per table.
func exportXLSX(path string, tables []exportTable) error {
	f := xlsx.NewFile()
	for _, t := range tables {
		sheet, err := f.AddSheet(t.name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", t.name)
		}
		hr := sheet.AddRow()
		for _, h := range t.header {
			hr.AddCell().SetString(h)
		}
		for _, row := range t.rows {
			r := sheet.AddRow()
			for _, cell := range row {
				r.AddCell().SetString(cell)
			}
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
