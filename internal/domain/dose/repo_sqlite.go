package dose

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type cacheRepoSQLite struct{ db *sql.DB }

// NewCacheRepoSQLite returns a CacheRepository backed by the shared SQLite
// database.
func NewCacheRepoSQLite(db *sql.DB) CacheRepository {
	return &cacheRepoSQLite{db: db}
}

func (r *cacheRepoSQLite) GetIngredient(ctx context.Context, drugName string) (string, error) {
	var ingredient string
	err := r.db.QueryRowContext(ctx,
		`SELECT active_ingredient FROM drug_cache WHERE drug_name = ?`,
		drugName).Scan(&ingredient)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCacheMiss
	}
	return ingredient, err
}

func (r *cacheRepoSQLite) PutIngredient(ctx context.Context, drugName, ingredient string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO drug_cache (drug_name, active_ingredient, cached_at)
		VALUES (?, ?, ?)`, drugName, ingredient, time.Now().UTC())
	return err
}

func (r *cacheRepoSQLite) GetReportDose(ctx context.Context, reportCode, ingredient string) (string, error) {
	var dose string
	err := r.db.QueryRowContext(ctx, `
		SELECT authorized_dose FROM report_dose_cache
		WHERE report_code = ? AND active_ingredient = ?`,
		reportCode, ingredient).Scan(&dose)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCacheMiss
	}
	return dose, err
}

func (r *cacheRepoSQLite) PutReportDose(ctx context.Context, reportCode, ingredient, authorizedDose string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO report_dose_cache
			(report_code, active_ingredient, authorized_dose, cached_at)
		VALUES (?, ?, ?, ?)`, reportCode, ingredient, authorizedDose, time.Now().UTC())
	return err
}

func (r *cacheRepoSQLite) GetMessageCodes(ctx context.Context, drugName string) ([]string, error) {
	var joined string
	err := r.db.QueryRowContext(ctx,
		`SELECT message_codes FROM drug_message_cache WHERE drug_name = ?`,
		drugName).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if joined == "" {
		return nil, nil
	}
	return strings.Split(joined, ","), nil
}

func (r *cacheRepoSQLite) PutMessageCodes(ctx context.Context, drugName string, codes []string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO drug_message_cache (drug_name, message_codes, cached_at)
		VALUES (?, ?, ?)`, drugName, strings.Join(codes, ","), time.Now().UTC())
	return err
}
