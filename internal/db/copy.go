package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams rows into table over the COPY protocol. table may be
// schema-qualified. Every row must have one value per column; a short or long
// row fails before anything is sent.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	n, err := q.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy %d rows into %s", len(rows), table)
	}
	return n, nil
}

func checkWidth(columns []string, rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(columns) {
			return eris.Errorf("row %d has %d values for %d columns", i, len(r), len(columns))
		}
	}
	return nil
}

func tableIdent(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
