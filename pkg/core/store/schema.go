package store

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. The documents table commits to
// an extraction_error column; it is written on every insert (empty string
// when extraction was clean) so readers never need to probe for it.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS investors (
		code       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS funds (
		code         TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		investor_ref TEXT NOT NULL REFERENCES investors(code),
		currency     TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id                    TEXT PRIMARY KEY,
		doc_type                  TEXT NOT NULL,
		classification_confidence DOUBLE PRECISION NOT NULL,
		source_path               TEXT NOT NULL,
		investor_ref              TEXT NOT NULL REFERENCES investors(code),
		fund_ref                  TEXT REFERENCES funds(code),
		as_of_date                DATE,
		currency                  TEXT,
		overall_confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
		extraction_error          TEXT NOT NULL DEFAULT '',
		created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS capital_accounts (
		fund_ref                    TEXT NOT NULL REFERENCES funds(code),
		investor_ref                TEXT NOT NULL REFERENCES investors(code),
		as_of_date                  DATE NOT NULL,
		beginning_balance           DOUBLE PRECISION NOT NULL DEFAULT 0,
		ending_balance              DOUBLE PRECISION NOT NULL DEFAULT 0,
		contributions_period        DOUBLE PRECISION NOT NULL DEFAULT 0,
		distributions_period        DOUBLE PRECISION NOT NULL DEFAULT 0,
		distributions_roc           DOUBLE PRECISION NOT NULL DEFAULT 0,
		distributions_gain          DOUBLE PRECISION NOT NULL DEFAULT 0,
		distributions_income        DOUBLE PRECISION NOT NULL DEFAULT 0,
		management_fees_period      DOUBLE PRECISION NOT NULL DEFAULT 0,
		partnership_expenses_period DOUBLE PRECISION NOT NULL DEFAULT 0,
		realized_gain_loss_period   DOUBLE PRECISION NOT NULL DEFAULT 0,
		unrealized_gain_loss_period DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_commitment            DOUBLE PRECISION NOT NULL DEFAULT 0,
		drawn_commitment            DOUBLE PRECISION NOT NULL DEFAULT 0,
		unfunded_commitment         DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency                    TEXT NOT NULL,
		source_doc_id               TEXT NOT NULL REFERENCES documents(doc_id),
		consistent                  BOOLEAN NOT NULL DEFAULT true,
		updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (fund_ref, investor_ref, as_of_date)
	)`,
	`CREATE TABLE IF NOT EXISTS nav_observations (
		id            BIGSERIAL PRIMARY KEY,
		fund_ref      TEXT NOT NULL REFERENCES funds(code),
		scope         TEXT NOT NULL,
		as_of_date    DATE NOT NULL,
		value         DOUBLE PRECISION NOT NULL,
		currency      TEXT NOT NULL,
		source_doc_id TEXT NOT NULL REFERENCES documents(doc_id),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cashflows (
		id            BIGSERIAL PRIMARY KEY,
		fund_ref      TEXT NOT NULL REFERENCES funds(code),
		investor_ref  TEXT,
		flow_type     TEXT NOT NULL,
		flow_date     DATE NOT NULL,
		amount        DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
		currency      TEXT NOT NULL,
		source_doc_id TEXT NOT NULL REFERENCES documents(doc_id),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id              BIGSERIAL PRIMARY KEY,
		fund_ref        TEXT NOT NULL REFERENCES funds(code),
		as_of_date      DATE NOT NULL,
		irr_net         DOUBLE PRECISION,
		moic            DOUBLE PRECISION,
		tvpi            DOUBLE PRECISION,
		dpi             DOUBLE PRECISION,
		rvpi            DOUBLE PRECISION,
		called_pct      DOUBLE PRECISION,
		distributed_pct DOUBLE PRECISION,
		source_doc_id   TEXT NOT NULL REFERENCES documents(doc_id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS field_audits (
		id               BIGSERIAL PRIMARY KEY,
		doc_id           TEXT NOT NULL,
		field_name       TEXT NOT NULL,
		raw_value        TEXT NOT NULL DEFAULT '',
		normalized_value TEXT NOT NULL DEFAULT '',
		extractor_tag    TEXT NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		validation_status TEXT NOT NULL,
		severity         TEXT,
		note             TEXT,
		override         BOOLEAN NOT NULL DEFAULT false,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_findings (
		id                  BIGSERIAL PRIMARY KEY,
		fund_ref            TEXT NOT NULL,
		as_of_date          DATE NOT NULL,
		reconciliation_type TEXT NOT NULL,
		severity            TEXT NOT NULL,
		status              TEXT NOT NULL,
		details             TEXT NOT NULL DEFAULT '',
		evidence            JSONB NOT NULL DEFAULT '{}',
		recommendations     JSONB NOT NULL DEFAULT '[]',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id             BIGSERIAL PRIMARY KEY,
		fund_ref       TEXT NOT NULL,
		as_of_date     DATE NOT NULL,
		overall_status TEXT NOT NULL,
		findings_count INTEGER NOT NULL,
		needs_review   BOOLEAN NOT NULL DEFAULT false,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nav_obs_key ON nav_observations (fund_ref, as_of_date)`,
	`CREATE INDEX IF NOT EXISTS idx_cashflows_fund ON cashflows (fund_ref, flow_date)`,
	`CREATE INDEX IF NOT EXISTS idx_field_audits_doc ON field_audits (doc_id)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_key ON reconciliation_findings (fund_ref, as_of_date)`,
}

// Migrate applies the schema statements in order.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
