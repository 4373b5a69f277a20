package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-xref/internal/db"
	"github.com/sells-group/provider-xref/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to the given database URL.
func NewPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	entity_count      BIGINT NOT NULL DEFAULT 0,
	chain_count       BIGINT NOT NULL DEFAULT 0,
	payment_count     BIGINT NOT NULL DEFAULT 0,
	multi_match_count BIGINT NOT NULL DEFAULT 0,
	name_mismatch_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ NOT NULL
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
	has_op_payments       BOOLEAN NOT NULL,
	has_pecos_enrollment  BOOLEAN NOT NULL,
	linkage_coverage      INT NOT NULL,
	data_sources          TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_npi_type
	ON provider_entities(npi, entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_state
	ON provider_entities(state_reconciled);

CREATE TABLE IF NOT EXISTS provider_payments (
	provider_id        TEXT PRIMARY KEY,
	sum_payment        DOUBLE PRECISION NOT NULL,
	max_payment        DOUBLE PRECISION NOT NULL,
	n_payments         BIGINT NOT NULL,
	first_payment_date TIMESTAMPTZ,
	last_payment_date  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS transitive_links (
	provider_id  TEXT NOT NULL,
	match_tier   TEXT NOT NULL,
	enrlmt_id    TEXT,
	linkage_path TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_provider ON transitive_links(provider_id);

CREATE TABLE IF NOT EXISTS data_quality_conflicts (
	conflict_type TEXT NOT NULL,
	count         BIGINT NOT NULL,
	pct_affected  DOUBLE PRECISION NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// PublishRun truncates and reloads every artifact table inside one
// transaction, bulk-loading via COPY.
func (s *PostgresStore) PublishRun(ctx context.Context, a *Artifacts) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin publish")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"TRUNCATE provider_entities, provider_payments, transitive_links, data_quality_conflicts",
	); err != nil {
		return eris.Wrap(err, "postgres: truncate artifacts")
	}

	entRows := make([][]any, 0, len(a.Entities))
	for _, e := range a.Entities {
		entRows = append(entRows, []any{
			e.ProviderID, e.NPI, nullStr(string(e.EntityType)),
			nullStr(e.FirstMed), nullStr(e.LastMed), nullStr(e.StateMed),
			nullStr(e.FirstReconciled), nullStr(e.LastReconciled), nullStr(e.StateReconciled),
			e.HasOPPayments, e.HasPECOSEnrollment, e.LinkageCoverage, e.DataSources,
		})
	}
	if _, err := db.CopyFromTx(ctx, tx, "provider_entities", []string{
		"provider_id", "npi", "entity_type", "first_med", "last_med", "state_med",
		"first_name_reconciled", "last_name_reconciled", "state_reconciled",
		"has_op_payments", "has_pecos_enrollment", "linkage_coverage", "data_sources",
	}, entRows); err != nil {
		return err
	}

	payRows := make([][]any, 0, len(a.Payments))
	for _, p := range a.Payments {
		payRows = append(payRows, []any{
			p.ProviderID, p.SumPayment, p.MaxPayment, p.NPayments,
			nullTime(p.FirstPaymentDate), nullTime(p.LastPaymentDate),
		})
	}
	if _, err := db.CopyFromTx(ctx, tx, "provider_payments", []string{
		"provider_id", "sum_payment", "max_payment", "n_payments",
		"first_payment_date", "last_payment_date",
	}, payRows); err != nil {
		return err
	}

	linkRows := make([][]any, 0, len(a.Chains))
	for _, c := range a.Chains {
		linkRows = append(linkRows, []any{
			c.ProviderID, string(c.MatchTier), nullStr(c.EnrollmentID), c.LinkagePath,
		})
	}
	if _, err := db.CopyFromTx(ctx, tx, "transitive_links", []string{
		"provider_id", "match_tier", "enrlmt_id", "linkage_path",
	}, linkRows); err != nil {
		return err
	}

	confRows := make([][]any, 0, len(a.Conflicts))
	for _, c := range a.Conflicts {
		confRows = append(confRows, []any{c.ConflictType, c.Count, c.PctAffected})
	}
	if _, err := db.CopyFromTx(ctx, tx, "data_quality_conflicts", []string{
		"conflict_type", "count", "pct_affected",
	}, confRows); err != nil {
		return err
	}

	if err := insertRunPostgres(ctx, tx, a.Summary); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit publish")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, summary model.RunSummary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin failure record")
	}
	defer tx.Rollback(ctx)
	if err := insertRunPostgres(ctx, tx, summary); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit failure record")
}

func insertRunPostgres(ctx context.Context, tx pgx.Tx, r model.RunSummary) error {
	_, err := tx.Exec(ctx, `INSERT INTO runs
		(id, status, entity_count, chain_count, payment_count,
		 multi_match_count, name_mismatch_pct, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, string(r.Status), r.EntityCount, r.ChainCount, r.PaymentCount,
		r.MultiMatchCount, r.NameMismatchPct, nullStr(r.Error),
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

func (s *PostgresStore) LastSuccessfulRun(ctx context.Context) (*model.RunSummary, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, status, entity_count, chain_count,
		payment_count, multi_match_count, name_mismatch_pct, COALESCE(error, ''),
		started_at, finished_at FROM runs
		WHERE status = $1 ORDER BY finished_at DESC LIMIT 1`,
		string(model.RunStatusSucceeded))
	r, err := scanRun(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last successful run")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT id, status, entity_count, chain_count,
		payment_count, multi_match_count, name_mismatch_pct, COALESCE(error, ''),
		started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) Entities(ctx context.Context) ([]model.ProviderEntity, error) {
	rows, err := s.pool.Query(ctx, `SELECT provider_id, npi,
		COALESCE(entity_type, ''), COALESCE(first_med, ''), COALESCE(last_med, ''),
		COALESCE(state_med, ''), COALESCE(first_name_reconciled, ''),
		COALESCE(last_name_reconciled, ''), COALESCE(state_reconciled, ''),
		has_op_payments, has_pecos_enrollment, linkage_coverage, data_sources
		FROM provider_entities ORDER BY npi, entity_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query entities")
	}
	defer rows.Close()

	var out []model.ProviderEntity
	for rows.Next() {
		var e model.ProviderEntity
		var et string
		if err := rows.Scan(&e.ProviderID, &e.NPI, &et, &e.FirstMed, &e.LastMed,
			&e.StateMed, &e.FirstReconciled, &e.LastReconciled, &e.StateReconciled,
			&e.HasOPPayments, &e.HasPECOSEnrollment, &e.LinkageCoverage, &e.DataSources,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		e.EntityType = model.EntityType(et)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query entities")
}

func (s *PostgresStore) Chains(ctx context.Context) ([]model.LinkageChain, error) {
	rows, err := s.pool.Query(ctx, `SELECT provider_id, match_tier,
		COALESCE(enrlmt_id, ''), linkage_path FROM transitive_links ORDER BY provider_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query links")
	}
	defer rows.Close()

	var out []model.LinkageChain
	for rows.Next() {
		var c model.LinkageChain
		var tier string
		if err := rows.Scan(&c.ProviderID, &tier, &c.EnrollmentID, &c.LinkagePath); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		c.MatchTier = model.MatchTier(tier)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query links")
}

func (s *PostgresStore) Payments(ctx context.Context) ([]model.PaymentAggregate, error) {
	rows, err := s.pool.Query(ctx, `SELECT provider_id, sum_payment, max_payment,
		n_payments, first_payment_date, last_payment_date
		FROM provider_payments ORDER BY provider_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query payments")
	}
	defer rows.Close()

	var out []model.PaymentAggregate
	for rows.Next() {
		var p model.PaymentAggregate
		var first, last *time.Time
		if err := rows.Scan(&p.ProviderID, &p.SumPayment, &p.MaxPayment,
			&p.NPayments, &first, &last); err != nil {
			return nil, eris.Wrap(err, "postgres: scan payment")
		}
		if first != nil {
			p.FirstPaymentDate = *first
		}
		if last != nil {
			p.LastPaymentDate = *last
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query payments")
}

func (s *PostgresStore) Conflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT conflict_type, count, pct_affected
		FROM data_quality_conflicts ORDER BY conflict_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query conflicts")
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		var c model.ConflictRecord
		if err := rows.Scan(&c.ConflictType, &c.Count, &c.PctAffected); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query conflicts")
}
