package sink

import (
	"bytes"
	"embed"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

//go:embed schema/*.json
var schemaFS embed.FS

type schemas struct {
	header   *jsonschema.Schema
	lineItem *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{"invoice_header.json", "invoice_line_item.json"} {
		b, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return nil, eris.Wrapf(err, "sink: read schema %s", name)
		}
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, eris.Wrapf(err, "sink: add schema %s", name)
		}
	}
	header, err := compiler.Compile("invoice_header.json")
	if err != nil {
		return nil, eris.Wrap(err, "sink: compile header schema")
	}
	lineItem, err := compiler.Compile("invoice_line_item.json")
	if err != nil {
		return nil, eris.Wrap(err, "sink: compile line item schema")
	}
	return &schemas{header: header, lineItem: lineItem}, nil
})

// Validate checks every row of rs against the store schema and the record key
// join. The first offending row is reported as a *SchemaMismatchError.
func Validate(rs *model.RecordSet) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}

	if rs.Header.RecordKey != rs.RecordKey {
		return schemaMismatch(model.RecordKindHeader, 0, eris.New("header record key does not match record set"))
	}
	if err := validateRow(s.header, rs.Header); err != nil {
		return schemaMismatch(model.RecordKindHeader, 0, err)
	}
	if rs.Header.LineItemCount != len(rs.LineItems) {
		return schemaMismatch(model.RecordKindHeader, 0,
			eris.Errorf("line_item_count %d but %d line items", rs.Header.LineItemCount, len(rs.LineItems)))
	}
	for i, li := range rs.LineItems {
		if li.RecordKey != rs.RecordKey {
			return schemaMismatch(model.RecordKindLineItem, i, eris.New("line item record key does not match header"))
		}
		if err := validateRow(s.lineItem, li); err != nil {
			return schemaMismatch(model.RecordKindLineItem, i, err)
		}
	}
	return nil
}

func validateRow(schema *jsonschema.Schema, row any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return eris.Wrap(err, "marshal row")
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return eris.Wrap(err, "unmarshal row")
	}
	return schema.Validate(v)
}
