package storage

// audit.go: historial del monitor de auditoría.
//
//   - `audit_cycles`: una fila por ciclo (resumen).
//   - `audit_findings`: upsert por (market_id, kind) con first_seen/last_seen,
//     así un hallazgo que persiste varios ciclos ocupa una sola fila.

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_cycles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    audited_at  TEXT    NOT NULL,
    findings    INTEGER NOT NULL,
    critical    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_findings (
    market_id   INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    title       TEXT    NOT NULL,
    expected    INTEGER NOT NULL,
    actual      INTEGER NOT NULL,
    detail      TEXT    NOT NULL,
    first_seen  TEXT    NOT NULL,
    last_seen   TEXT    NOT NULL,
    PRIMARY KEY (market_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_audit_findings_last_seen ON audit_findings(last_seen);
`

// StoredFinding es un hallazgo con su ventana de observación.
type StoredFinding struct {
	domain.Finding
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ApplyAuditSchema crea las tablas del monitor si no existen.
func (s *SQLiteStorage) ApplyAuditSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("storage.ApplyAuditSchema: %w", err)
	}
	return nil
}

// SaveAudit persiste el resumen del ciclo y hace upsert de cada hallazgo.
func (s *SQLiteStorage) SaveAudit(ctx context.Context, findings []domain.Finding) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	critical := 0
	for _, f := range findings {
		if f.Kind.Critical() {
			critical++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAudit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_cycles (audited_at, findings, critical) VALUES (?, ?, ?)`,
		now, len(findings), critical,
	); err != nil {
		return fmt.Errorf("storage.SaveAudit: insert cycle: %w", err)
	}

	if len(findings) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit_findings
				(market_id, kind, title, expected, actual, detail, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(market_id, kind) DO UPDATE SET
				title     = excluded.title,
				expected  = excluded.expected,
				actual    = excluded.actual,
				detail    = excluded.detail,
				last_seen = excluded.last_seen
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveAudit: prepare: %w", err)
		}
		defer stmt.Close()

		for _, f := range findings {
			if _, err := stmt.ExecContext(ctx,
				int64(f.MarketID), string(f.Kind), f.Title,
				int64(f.Expected), int64(f.Actual), f.Detail, now, now,
			); err != nil {
				return fmt.Errorf("storage.SaveAudit: upsert market %d: %w", f.MarketID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAudit: commit: %w", err)
	}
	return nil
}

// Findings devuelve los hallazgos guardados, los más recientes primero.
func (s *SQLiteStorage) Findings(ctx context.Context) ([]StoredFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, kind, title, expected, actual, detail, first_seen, last_seen
		FROM audit_findings ORDER BY last_seen DESC, market_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.Findings: query: %w", err)
	}
	defer rows.Close()

	var out []StoredFinding
	for rows.Next() {
		var (
			sf          StoredFinding
			kind        string
			first, last string
		)
		if err := rows.Scan(u(&sf.MarketID), &kind, &sf.Title, u(&sf.Expected), u(&sf.Actual),
			&sf.Detail, &first, &last); err != nil {
			return nil, fmt.Errorf("storage.Findings: scan row: %w", err)
		}
		sf.Kind = domain.FindingKind(kind)
		if sf.FirstSeen, err = time.Parse(time.RFC3339Nano, first); err != nil {
			return nil, fmt.Errorf("storage.Findings: first_seen: %w", err)
		}
		if sf.LastSeen, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("storage.Findings: last_seen: %w", err)
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}
