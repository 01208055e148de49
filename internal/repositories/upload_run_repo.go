package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/models"
)

var ErrUploadRunNotFound = errors.New("upload run not found")

type UploadRunRepo struct {
	db *sql.DB
}

func NewUploadRunRepo(db *sql.DB) *UploadRunRepo {
	return &UploadRunRepo{db: db}
}

func (r *UploadRunRepo) Create(ctx context.Context, run *models.UploadRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.UploadStatusRunning
	}
	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_runs (id, collection_id, status, done, total, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CollectionID, run.Status, run.Done, run.Total, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert upload run: %w", err)
	}
	return nil
}

// UpdateProgress never moves done backwards.
func (r *UploadRunRepo) UpdateProgress(ctx context.Context, id string, done, total int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE upload_runs SET done = MAX(done, ?), total = ?, updated_at = ?
		WHERE id = ?
	`, done, total, time.Now().UTC(), id)
	return err
}

func (r *UploadRunRepo) Finish(ctx context.Context, id, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_runs SET status = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUploadRunNotFound
	}
	return nil
}

func (r *UploadRunRepo) GetByID(ctx context.Context, id string) (*models.UploadRun, error) {
	var run models.UploadRun
	err := r.db.QueryRowContext(ctx, `
		SELECT id, collection_id, status, done, total, error, created_at, updated_at
		FROM upload_runs WHERE id = ?
	`, id).Scan(&run.ID, &run.CollectionID, &run.Status, &run.Done, &run.Total, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUploadRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByCollection returns the runs of a collection, newest first. An empty
// collectionID lists every run.
func (r *UploadRunRepo) ListByCollection(ctx context.Context, collectionID string, limit int) ([]models.UploadRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, collection_id, status, done, total, error, created_at, updated_at
		FROM upload_runs
	`
	args := []any{}
	if collectionID != "" {
		query += " WHERE collection_id = ?"
		args = append(args, collectionID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.UploadRun
	for rows.Next() {
		var run models.UploadRun
		if err := rows.Scan(&run.ID, &run.CollectionID, &run.Status, &run.Done, &run.Total, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
