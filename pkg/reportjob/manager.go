package reportjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/blob"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
)

var (
	ErrNotFound     = errors.New("report not found")
	ErrNotReady     = errors.New("report not ready")
	ErrInvalidInput = errors.New("invalid report input")
)

type reportDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Job is one report-generation request. StorageKey, ContentType, and
// SizeBytes are set when the worker completes; ErrorDetail when it fails.
type Job struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CaseID      string     `json:"caseId"`
	CreatedBy   string     `json:"createdBy"`
	Format      string     `json:"format"`
	Status      string     `json:"status"`
	StorageKey  string     `json:"-"`
	ContentType string     `json:"-"`
	SizeBytes   int64      `json:"sizeBytes,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type CreateInput struct {
	Title       string
	Description string
	CaseID      string
	Format      string
}

// Manager owns report rows. Reports are private to their creator for every
// role, so all reads and writes filter on created_by.
type Manager struct {
	DB   reportDB
	Blob blob.Store
	// Dispatch hands a freshly created job id to the worker. Optional; the
	// worker's scan loop picks up pending rows regardless.
	Dispatch func(jobID string)
}

const jobColumns = `id, title, description, case_id, created_by, format, status,
	storage_key, content_type, size_bytes, error_detail, created_at, completed_at`

func (m *Manager) Create(ctx context.Context, ac scope.AuthContext, in CreateInput) (Job, error) {
	title := strings.TrimSpace(in.Title)
	if n := len(title); n < 3 || n > 200 {
		return Job{}, fmt.Errorf("%w: title must be 3-200 characters", ErrInvalidInput)
	}
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = FormatPDF
	}
	if !ValidFormat(format) {
		return Job{}, fmt.Errorf("%w: format must be pdf or csv", ErrInvalidInput)
	}
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return Job{}, fmt.Errorf("%w: caseId is required", ErrInvalidInput)
	}

	// The referenced case must be visible to the caller under role scoping.
	query := `SELECT 1 FROM cases WHERE id = $1`
	args := []any{caseID}
	clause, extra := scope.Clause(ac, "created_by", 2)
	query += clause
	args = append(args, extra...)
	var one int
	if err := m.DB.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, fmt.Errorf("%w: case not found", ErrInvalidInput)
		}
		return Job{}, err
	}

	job := Job{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CaseID:      caseID,
		CreatedBy:   ac.UserID,
		Format:      format,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := m.DB.Exec(ctx, `
		INSERT INTO reports (id, title, description, case_id, created_by, format, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, job.ID, job.Title, job.Description, job.CaseID, job.CreatedBy, job.Format, job.Status, job.CreatedAt)
	if err != nil {
		return Job{}, err
	}
	if m.Dispatch != nil {
		m.Dispatch(job.ID)
	}
	return job, nil
}

func (m *Manager) Get(ctx context.Context, ac scope.AuthContext, id string) (Job, error) {
	row := m.DB.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM reports WHERE id = $1 AND created_by = $2
	`, id, ac.UserID)
	return scanJob(row)
}

func (m *Manager) List(ctx context.Context, ac scope.AuthContext) ([]Job, error) {
	rows, err := m.DB.Query(ctx, `
		SELECT `+jobColumns+`
		FROM reports WHERE created_by = $1
		ORDER BY created_at DESC
	`, ac.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Update changes title and description only; lifecycle fields belong to the
// worker.
func (m *Manager) Update(ctx context.Context, ac scope.AuthContext, id, title, description string) (Job, error) {
	title = strings.TrimSpace(title)
	if n := len(title); n < 3 || n > 200 {
		return Job{}, fmt.Errorf("%w: title must be 3-200 characters", ErrInvalidInput)
	}
	tag, err := m.DB.Exec(ctx, `
		UPDATE reports SET title = $1, description = $2
		WHERE id = $3 AND created_by = $4
	`, title, strings.TrimSpace(description), id, ac.UserID)
	if err != nil {
		return Job{}, err
	}
	if tag.RowsAffected() == 0 {
		return Job{}, ErrNotFound
	}
	return m.Get(ctx, ac, id)
}

// Delete removes the row first so the job disappears even when the blob
// store is down; the orphaned object delete is best effort.
func (m *Manager) Delete(ctx context.Context, ac scope.AuthContext, id string) error {
	var storageKey string
	err := m.DB.QueryRow(ctx, `
		SELECT COALESCE(storage_key, '') FROM reports WHERE id = $1 AND created_by = $2
	`, id, ac.UserID).Scan(&storageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	tag, err := m.DB.Exec(ctx, `DELETE FROM reports WHERE id = $1 AND created_by = $2`, id, ac.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if storageKey != "" && m.Blob != nil {
		if err := m.Blob.Delete(ctx, storageKey); err != nil {
			log.Printf("reportjob: orphaned blob %s after delete of %s: %v", storageKey, id, err)
		}
	}
	return nil
}

// Download returns the rendered bytes for a ready job.
func (m *Manager) Download(ctx context.Context, ac scope.AuthContext, id string) ([]byte, string, string, error) {
	job, err := m.Get(ctx, ac, id)
	if err != nil {
		return nil, "", "", err
	}
	if job.Status != StatusReady {
		return nil, "", "", ErrNotReady
	}
	data, contentType, err := m.Blob.Get(ctx, job.StorageKey)
	if err != nil {
		return nil, "", "", err
	}
	if contentType == "" {
		contentType = job.ContentType
	}
	if contentType == "" {
		contentType = ContentType(job.Format)
	}
	return data, contentType, DownloadFilename(job), nil
}

// DownloadFilename derives the attachment name from the job title.
func DownloadFilename(job Job) string {
	return Slug(job.Title) + "." + job.Format
}

// Slug lowercases and strips a title down to [a-z0-9-] for filenames and
// storage keys.
func Slug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "report"
	}
	return out
}

// StorageKey builds the canonical object key for a job's rendered output.
func StorageKey(job Job) string {
	ext := job.Format
	if ext == "" {
		ext = FormatPDF
	}
	return fmt.Sprintf("reports/%s/%s.%s", job.ID, Slug(job.Title), ext)
}

func scanJob(row pgx.Row) (Job, error) {
	var job Job
	var description, storageKey, contentType, errorDetail *string
	var sizeBytes *int64
	var completedAt *time.Time
	err := row.Scan(
		&job.ID, &job.Title, &description, &job.CaseID, &job.CreatedBy,
		&job.Format, &job.Status, &storageKey, &contentType, &sizeBytes,
		&errorDetail, &job.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	if description != nil {
		job.Description = *description
	}
	if storageKey != nil {
		job.StorageKey = *storageKey
	}
	if contentType != nil {
		job.ContentType = *contentType
	}
	if sizeBytes != nil {
		job.SizeBytes = *sizeBytes
	}
	if errorDetail != nil {
		job.ErrorDetail = *errorDetail
	}
	job.CompletedAt = completedAt
	return job, nil
}
