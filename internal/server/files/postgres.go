package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/dbx"
)

// PostgresRepository implements the file registry over *sql.DB. It holds the
// full handle rather than a dbx.DBTX because DeleteByAccount opens its own
// transaction.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO files (id, account_id, stored_name, original_name, size, uploaded_at, download_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.AccountID, rec.StoredName, rec.OriginalName, rec.Size, rec.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*FileRecord, error) {
	query := `
		SELECT id, account_id, stored_name, original_name, size, uploaded_at, download_count
		FROM files
		WHERE account_id = $1
		ORDER BY uploaded_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.StoredName, &rec.OriginalName,
			&rec.Size, &rec.UploadedAt, &rec.DownloadCount); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, accountID, fileID string) (*FileRecord, error) {
	query := `
		SELECT id, account_id, stored_name, original_name, size, uploaded_at, download_count
		FROM files
		WHERE id = $1 AND account_id = $2
	`

	rec := &FileRecord{}
	err := r.db.QueryRowContext(ctx, query, fileID, accountID).
		Scan(&rec.ID, &rec.AccountID, &rec.StoredName, &rec.OriginalName,
			&rec.Size, &rec.UploadedAt, &rec.DownloadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rec, nil
}

// DeleteByAccount collects the account's stored names and deletes the rows
// in one transaction. Records go away before any blob does; a crash after
// commit leaves at worst unreferenced blobs for the sweeper.
func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) ([]string, error) {
	var names []string

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT stored_name FROM files WHERE account_id = $1`, accountID)
		if err != nil {
			return fmt.Errorf("select stored names: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan error: %w", err)
			}
			names = append(names, name)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE account_id = $1`, accountID); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return names, nil
}

func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE files SET download_count = download_count + 1 WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, accountID string) (*AccountStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(download_count), 0)
		FROM files
		WHERE account_id = $1
	`

	stats := &AccountStats{}
	err := r.db.QueryRowContext(ctx, query, accountID).
		Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.TotalDownloads)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) ListStoredNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stored_name FROM files`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}
