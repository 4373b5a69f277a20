package source

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/sells-group/provider-xref/internal/model"
)

// Options configures input decoding.
type Options struct {
	// Windows1252 decodes the file as Windows-1252 before CSV parsing;
	// several CMS exports still ship in that encoding.
	Windows1252 bool
}

// Load reads one source CSV into RawRecords. The fixed schema is resolved
// against the header before any row is read; schema drift is a structural
// failure, not a fallback.
func Load(path string, src model.Source, opts Options) ([]model.RawRecord, error) {
	cm, err := Schema(src)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close()

	var rd io.Reader = f
	if opts.Windows1252 {
		rd = transform.NewReader(f, charmap.Windows1252.NewDecoder())
	}

	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "source: read header of %s", path)
	}
	idx, err := resolveColumns(cm, header, src)
	if err != nil {
		return nil, err
	}

	var records []model.RawRecord
	for rowID := 0; ; rowID++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "source: read %s row %d", src, rowID)
		}
		records = append(records, buildRecord(src, rowID, row, idx))
	}

	zap.L().Info("source loaded",
		zap.String("source", string(src)),
		zap.String("path", path),
		zap.Int("rows", len(records)),
	)
	return records, nil
}

// columnIndex maps record fields to header positions. -1 means the source
// does not supply the field.
type columnIndex map[string]int

func resolveColumns(cm ColumnMap, header []string, src model.Source) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}

	idx := make(columnIndex)
	var missing []string
	for _, fc := range cm.fields() {
		if fc.column == "" {
			idx[fc.field] = -1
			continue
		}
		i, ok := pos[fc.column]
		if !ok {
			missing = append(missing, fc.column)
			continue
		}
		idx[fc.field] = i
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("source: %s schema drift, missing columns %s",
			src, strings.Join(missing, ", "))
	}
	return idx, nil
}

func buildRecord(src model.Source, rowID int, row []string, idx columnIndex) model.RawRecord {
	get := func(field string) string {
		i := idx[field]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := model.RawRecord{
		Source:       src,
		RowID:        rowID,
		NPI:          get("npi"),
		First:        get("first"),
		Last:         get("last"),
		Org:          get("org"),
		Street:       get("street"),
		City:         get("city"),
		State:        get("state"),
		Zip:          get("zip"),
		EntityType:   parseEntityType(get("entity_type")),
		EnrollmentID: get("enrollment_id"),
	}

	if idx["payment_amount"] >= 0 {
		if amt, ok := parseFloat(get("payment_amount")); ok {
			rec.PaymentAmount = amt
			rec.HasPayment = true
		}
	}
	if idx["payment_date"] >= 0 {
		rec.PaymentDate = parseDate(get("payment_date"))
	}
	return rec
}
