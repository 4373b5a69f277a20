// Package source loads the three tabular inputs into RawRecords against
// fixed, versioned column schemas.
package source

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-xref/internal/model"
)

//go:embed schemas.yaml
var schemasYAML []byte

// ColumnMap names the input column carrying each record field. Empty
// entries mean the source does not supply that field.
type ColumnMap struct {
	NPI           string `yaml:"npi"`
	First         string `yaml:"first"`
	Last          string `yaml:"last"`
	Org           string `yaml:"org"`
	Street        string `yaml:"street"`
	City          string `yaml:"city"`
	State         string `yaml:"state"`
	Zip           string `yaml:"zip"`
	EntityType    string `yaml:"entity_type"`
	EnrollmentID  string `yaml:"enrollment_id"`
	PaymentAmount string `yaml:"payment_amount"`
	PaymentDate   string `yaml:"payment_date"`
}

type schemaFile struct {
	Version int                  `yaml:"version"`
	Sources map[string]ColumnMap `yaml:"sources"`
}

var schemaKeys = map[model.Source]string{
	model.SourceMedicare:     "medicare",
	model.SourcePECOS:        "pecos",
	model.SourceOpenPayments: "open_payments",
}

// Schema returns the fixed column map for a source.
func Schema(src model.Source) (ColumnMap, error) {
	var f schemaFile
	if err := yaml.Unmarshal(schemasYAML, &f); err != nil {
		return ColumnMap{}, eris.Wrap(err, "source: parse embedded schemas")
	}
	key, ok := schemaKeys[src]
	if !ok {
		return ColumnMap{}, eris.Errorf("source: unknown source %q", src)
	}
	cm, ok := f.Sources[key]
	if !ok {
		return ColumnMap{}, eris.Errorf("source: no schema for %q", key)
	}
	return cm, nil
}

// fields lists the declared (name, column) pairs in a stable order.
func (c ColumnMap) fields() []struct{ field, column string } {
	return []struct{ field, column string }{
		{"npi", c.NPI},
		{"first", c.First},
		{"last", c.Last},
		{"org", c.Org},
		{"street", c.Street},
		{"city", c.City},
		{"state", c.State},
		{"zip", c.Zip},
		{"entity_type", c.EntityType},
		{"enrollment_id", c.EnrollmentID},
		{"payment_amount", c.PaymentAmount},
		{"payment_date", c.PaymentDate},
	}
}
