package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type archiveRepoSQLite struct{ db *sql.DB }

// NewArchiveRepoSQLite returns an ArchiveRepository backed by the shared
// SQLite database.
func NewArchiveRepoSQLite(db *sql.DB) ArchiveRepository {
	return &archiveRepoSQLite{db: db}
}

func (r *archiveRepoSQLite) Save(ctx context.Context, res *Result) error {
	if res.PrescriptionID == "" {
		return fmt.Errorf("prescription_id is required")
	}
	analysisBlob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var prescriptionBlob []byte
	var nationalID, name string
	if res.RawInputs != nil {
		prescriptionBlob, err = json.Marshal(res.RawInputs)
		if err != nil {
			return fmt.Errorf("marshal prescription: %w", err)
		}
		nationalID = res.RawInputs.Patient.NationalID
		name = res.RawInputs.Patient.Name
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO prescriptions
			(prescription_id, patient_national_id, patient_name,
			 prescription_blob, analysis_blob, decision, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(
			(SELECT created_at FROM prescriptions WHERE prescription_id = ?), ?), ?)`,
		res.PrescriptionID, nationalID, name,
		prescriptionBlob, analysisBlob, string(res.FinalDecision),
		res.PrescriptionID, res.Metadata.StartedAt.UTC(), res.Metadata.FinishedAt.UTC())
	return err
}

func (r *archiveRepoSQLite) scan(row *sql.Row) (*Result, error) {
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(blob, &res); err != nil {
		return nil, fmt.Errorf("unmarshal archived result: %w", err)
	}
	return &res, nil
}

func (r *archiveRepoSQLite) GetByPrescriptionID(ctx context.Context, prescriptionID string) (*Result, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT analysis_blob FROM prescriptions WHERE prescription_id = ?`, prescriptionID)
	return r.scan(row)
}

func (r *archiveRepoSQLite) List(ctx context.Context, limit, offset int) ([]*Result, int, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT analysis_blob FROM prescriptions
		ORDER BY processed_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, 0, err
		}
		var res Result
		if err := json.Unmarshal(blob, &res); err != nil {
			return nil, 0, fmt.Errorf("unmarshal archived result: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prescriptions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *archiveRepoSQLite) CountByDecision(ctx context.Context) (map[Action]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM prescriptions GROUP BY decision`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Action]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		counts[Action(d)] = n
	}
	return counts, rows.Err()
}

func (r *archiveRepoSQLite) AppendLog(ctx context.Context, prescriptionID, action, details string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_logs (prescription_id, action, details, timestamp)
		VALUES (?, ?, ?, ?)`,
		prescriptionID, action, details, time.Now().UTC())
	return err
}

func (r *archiveRepoSQLite) ListLogs(ctx context.Context, prescriptionID string) ([]*ProcessingLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, prescription_id, action, COALESCE(details, ''), timestamp
		FROM processing_logs WHERE prescription_id = ? ORDER BY id`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProcessingLog
	for rows.Next() {
		var l ProcessingLog
		if err := rows.Scan(&l.ID, &l.PrescriptionID, &l.Action, &l.Details, &l.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
