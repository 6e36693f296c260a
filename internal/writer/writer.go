// Package writer applies mapped records to the database as
// idempotent upserts. Parents are upserted by primary key; child
// tables follow the replace-all policy inside the same transaction,
// so re-applying any input converges to the same state.
package writer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// maxChildRowsPerInsert splits very wide child inserts into multiple
// statements.
const maxChildRowsPerInsert = 500

// Writer batches parent records into per-chunk transactions.
type Writer struct {
	pool *pgxpool.Pool
}

// New creates a Writer on the shared pool.
func New(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// WriteChunk upserts a chunk of mapped records in one transaction.
// On any failure the whole transaction rolls back and every parent in
// the chunk keeps its previous state. Database errors are classified:
// serialization/deadlock/connection failures come back as
// *RecoverableError so the engine can checkpoint and resume.
func (w *Writer) WriteChunk(ctx context.Context, spec mapper.TableSpec, recs []*mapper.Mapped) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, rec := range recs {
		if err := w.writeOne(ctx, tx, spec, rec, now); err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}

	log.Debug().
		Str("table", spec.Parent).
		Int("parents", len(recs)).
		Msg("chunk committed")
	return nil
}

func (w *Writer) writeOne(ctx context.Context, tx pgx.Tx, spec mapper.TableSpec, rec *mapper.Mapped, now time.Time) error {
	parent := rec.Parent
	// Mirror-managed write timestamp.
	parent["last_sync_date"] = now

	if err := upsertParent(ctx, tx, spec, parent); err != nil {
		return fmt.Errorf("upsert %s %d: %w", spec.Parent, rec.PK, err)
	}

	for _, child := range spec.Children {
		rows := rec.Children[child.Table]
		if err := replaceChildren(ctx, tx, child, rec.PK, rows); err != nil {
			return fmt.Errorf("replace %s for %s %d: %w", child.Table, spec.Parent, rec.PK, err)
		}
	}
	return nil
}

// upsertParent issues INSERT ... ON CONFLICT (pk) DO UPDATE over the
// row's full column set.
func upsertParent(ctx context.Context, tx pgx.Tx, spec mapper.TableSpec, row mapper.Row) error {
	cols := sortedColumns(row)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	var updates []string
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
		if c != spec.PK {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
		spec.Parent,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		spec.PK,
		strings.Join(updates, ", "))

	_, err := tx.Exec(ctx, sql, args...)
	return err
}

// replaceChildren deletes the parent's existing child rows and
// inserts the supplied set.
func replaceChildren(ctx context.Context, tx pgx.Tx, child mapper.ChildSpec, parentPK int64, rows []mapper.Row) error {
	del := fmt.Sprintf(`DELETE FROM %q WHERE %s = $1`, child.Table, child.FK)
	if _, err := tx.Exec(ctx, del, parentPK); err != nil {
		return err
	}

	for start := 0; start < len(rows); start += maxChildRowsPerInsert {
		end := start + maxChildRowsPerInsert
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertChildRows(ctx, tx, child.Table, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// insertChildRows builds one multi-row INSERT. All rows of a child
// table share the mapper's column set.
func insertChildRows(ctx context.Context, tx pgx.Tx, table string, rows []mapper.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := sortedColumns(rows[0])

	var b strings.Builder
	fmt.Fprintf(&b, `INSERT INTO %q (%s) VALUES `, table, strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+1)
			args = append(args, row[c])
		}
		b.WriteString(")")
	}

	_, err := tx.Exec(ctx, b.String(), args...)
	return err
}

func sortedColumns(row mapper.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
