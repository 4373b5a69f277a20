package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-xref/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	entity_count      INTEGER NOT NULL DEFAULT 0,
	chain_count       INTEGER NOT NULL DEFAULT 0,
	payment_count     INTEGER NOT NULL DEFAULT 0,
	multi_match_count INTEGER NOT NULL DEFAULT 0,
	name_mismatch_pct REAL NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        DATETIME NOT NULL,
	finished_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_entities (
	provider_id           TEXT PRIMARY KEY,
	npi                   TEXT NOT NULL,
	entity_type           TEXT,
	first_med             TEXT,
	last_med              TEXT,
	state_med             TEXT,
	first_name_reconciled TEXT,
	last_name_reconciled  TEXT,
	state_reconciled      TEXT,
	has_op_payments       INTEGER NOT NULL,
	has_pecos_enrollment  INTEGER NOT NULL,
	linkage_coverage      INTEGER NOT NULL,
	data_sources          TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_npi_type
	ON provider_entities(npi, entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_state
	ON provider_entities(state_reconciled);

CREATE TABLE IF NOT EXISTS provider_payments (
	provider_id        TEXT PRIMARY KEY,
	sum_payment        REAL NOT NULL,
	max_payment        REAL NOT NULL,
	n_payments         INTEGER NOT NULL,
	first_payment_date DATETIME,
	last_payment_date  DATETIME
);

CREATE TABLE IF NOT EXISTS transitive_links (
	provider_id  TEXT NOT NULL,
	match_tier   TEXT NOT NULL,
	enrlmt_id    TEXT,
	linkage_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS data_quality_conflicts (
	conflict_type TEXT NOT NULL,
	count         INTEGER NOT NULL,
	pct_affected  REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_links_provider ON transitive_links(provider_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PublishRun replaces all artifact tables and records the run in one
// transaction.
func (s *SQLiteStore) PublishRun(ctx context.Context, a *Artifacts) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin publish")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"provider_entities", "provider_payments", "transitive_links", "data_quality_conflicts",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}

	entStmt, err := tx.PrepareContext(ctx, `INSERT INTO provider_entities
		(provider_id, npi, entity_type, first_med, last_med, state_med,
		 first_name_reconciled, last_name_reconciled, state_reconciled,
		 has_op_payments, has_pecos_enrollment, linkage_coverage, data_sources)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare entity insert")
	}
	defer entStmt.Close()
	for _, e := range a.Entities {
		_, err := entStmt.ExecContext(ctx,
			e.ProviderID, e.NPI, nullStr(string(e.EntityType)),
			nullStr(e.FirstMed), nullStr(e.LastMed), nullStr(e.StateMed),
			nullStr(e.FirstReconciled), nullStr(e.LastReconciled), nullStr(e.StateReconciled),
			e.HasOPPayments, e.HasPECOSEnrollment, e.LinkageCoverage, e.DataSources,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert entity %s", e.ProviderID)
		}
	}

	payStmt, err := tx.PrepareContext(ctx, `INSERT INTO provider_payments
		(provider_id, sum_payment, max_payment, n_payments, first_payment_date, last_payment_date)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare payment insert")
	}
	defer payStmt.Close()
	for _, p := range a.Payments {
		_, err := payStmt.ExecContext(ctx,
			p.ProviderID, p.SumPayment, p.MaxPayment, p.NPayments,
			nullTime(p.FirstPaymentDate), nullTime(p.LastPaymentDate),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert payment %s", p.ProviderID)
		}
	}

	linkStmt, err := tx.PrepareContext(ctx, `INSERT INTO transitive_links
		(provider_id, match_tier, enrlmt_id, linkage_path) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare link insert")
	}
	defer linkStmt.Close()
	for _, c := range a.Chains {
		_, err := linkStmt.ExecContext(ctx,
			c.ProviderID, string(c.MatchTier), nullStr(c.EnrollmentID), c.LinkagePath,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert link %s", c.ProviderID)
		}
	}

	for _, c := range a.Conflicts {
		_, err := tx.ExecContext(ctx, `INSERT INTO data_quality_conflicts
			(conflict_type, count, pct_affected) VALUES (?, ?, ?)`,
			c.ConflictType, c.Count, c.PctAffected,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert conflict %s", c.ConflictType)
		}
	}

	if err := insertRunSQLite(ctx, tx, a.Summary); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit publish")
}

// RecordFailure logs a failed run without touching the artifact tables.
func (s *SQLiteStore) RecordFailure(ctx context.Context, summary model.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin failure record")
	}
	defer tx.Rollback()
	if err := insertRunSQLite(ctx, tx, summary); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit failure record")
}

func insertRunSQLite(ctx context.Context, tx *sql.Tx, r model.RunSummary) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, status, entity_count, chain_count, payment_count,
		 multi_match_count, name_mismatch_pct, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Status), r.EntityCount, r.ChainCount, r.PaymentCount,
		r.MultiMatchCount, r.NameMismatchPct, nullStr(r.Error),
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

const runColumns = `id, status, entity_count, chain_count, payment_count,
	multi_match_count, name_mismatch_pct, COALESCE(error, ''), started_at, finished_at`

func (s *SQLiteStore) LastSuccessfulRun(ctx context.Context) (*model.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE status = ? ORDER BY finished_at DESC LIMIT 1`, string(model.RunStatusSucceeded))
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last successful run")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func scanRun(scan func(...any) error) (model.RunSummary, error) {
	var r model.RunSummary
	var status string
	err := scan(&r.ID, &status, &r.EntityCount, &r.ChainCount, &r.PaymentCount,
		&r.MultiMatchCount, &r.NameMismatchPct, &r.Error, &r.StartedAt, &r.FinishedAt)
	r.Status = model.RunStatus(status)
	return r, err
}

func (s *SQLiteStore) Entities(ctx context.Context) ([]model.ProviderEntity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider_id, npi,
		COALESCE(entity_type, ''), COALESCE(first_med, ''), COALESCE(last_med, ''),
		COALESCE(state_med, ''), COALESCE(first_name_reconciled, ''),
		COALESCE(last_name_reconciled, ''), COALESCE(state_reconciled, ''),
		has_op_payments, has_pecos_enrollment, linkage_coverage, data_sources
		FROM provider_entities ORDER BY npi, entity_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query entities")
	}
	defer rows.Close()

	var out []model.ProviderEntity
	for rows.Next() {
		var e model.ProviderEntity
		var et string
		var hasOP, hasPECOS int
		if err := rows.Scan(&e.ProviderID, &e.NPI, &et, &e.FirstMed, &e.LastMed,
			&e.StateMed, &e.FirstReconciled, &e.LastReconciled, &e.StateReconciled,
			&hasOP, &hasPECOS, &e.LinkageCoverage, &e.DataSources,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.EntityType = model.EntityType(et)
		e.HasOPPayments = hasOP != 0
		e.HasPECOSEnrollment = hasPECOS != 0
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query entities")
}

func (s *SQLiteStore) Chains(ctx context.Context) ([]model.LinkageChain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider_id, match_tier,
		COALESCE(enrlmt_id, ''), linkage_path FROM transitive_links ORDER BY provider_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query links")
	}
	defer rows.Close()

	var out []model.LinkageChain
	for rows.Next() {
		var c model.LinkageChain
		var tier string
		if err := rows.Scan(&c.ProviderID, &tier, &c.EnrollmentID, &c.LinkagePath); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		c.MatchTier = model.MatchTier(tier)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query links")
}

func (s *SQLiteStore) Payments(ctx context.Context) ([]model.PaymentAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider_id, sum_payment, max_payment,
		n_payments, first_payment_date, last_payment_date
		FROM provider_payments ORDER BY provider_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query payments")
	}
	defer rows.Close()

	var out []model.PaymentAggregate
	for rows.Next() {
		var p model.PaymentAggregate
		var first, last sql.NullTime
		if err := rows.Scan(&p.ProviderID, &p.SumPayment, &p.MaxPayment,
			&p.NPayments, &first, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan payment")
		}
		p.FirstPaymentDate = first.Time
		p.LastPaymentDate = last.Time
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query payments")
}

func (s *SQLiteStore) Conflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conflict_type, count, pct_affected
		FROM data_quality_conflicts ORDER BY conflict_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query conflicts")
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		var c model.ConflictRecord
		if err := rows.Scan(&c.ConflictType, &c.Count, &c.PctAffected); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query conflicts")
}

// nullStr maps "" to NULL so absent fields stay absent in the table.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
