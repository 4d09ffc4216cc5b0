package reportjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/blob"
)

// Worker claims pending jobs, renders them, and uploads the result. Multiple
// workers may run concurrently; the conditional claim UPDATE guarantees
// at-most-once pickup per job.
type Worker struct {
	DB   reportDB
	Blob blob.Store
	// OnTransition observes every successful status change. Optional.
	OnTransition func(jobID, from, to string)
}

// Process runs one job end to end. A job already claimed or finished by
// another worker makes the claim a no-op and Process returns nil.
func (w *Worker) Process(ctx context.Context, jobID string) error {
	tag, err := w.DB.Exec(ctx, `
		UPDATE reports SET status = $1, processing_at = $2
		WHERE id = $3 AND status = $4
	`, StatusProcessing, time.Now().UTC(), jobID, StatusPending)
	if err != nil {
		return fmt.Errorf("claim %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	w.transitioned(jobID, StatusPending, StatusProcessing)

	job, err := w.loadJob(ctx, jobID)
	if err != nil {
		w.fail(ctx, jobID, "load job: "+err.Error())
		return err
	}
	rows, err := w.gatherRows(ctx, job)
	if err != nil {
		w.fail(ctx, jobID, "gather data: "+err.Error())
		return err
	}
	data, contentType, err := RendererFor(job.Format).Render(ctx, job, rows)
	if err != nil {
		w.fail(ctx, jobID, "render: "+err.Error())
		return err
	}
	key := StorageKey(job)
	if err := w.Blob.Put(ctx, key, data, contentType); err != nil {
		w.fail(ctx, jobID, "store output: "+err.Error())
		return err
	}

	tag, err = w.DB.Exec(ctx, `
		UPDATE reports
		SET status = $1, storage_key = $2, content_type = $3, size_bytes = $4, completed_at = $5
		WHERE id = $6 AND status = $7
	`, StatusReady, key, contentType, int64(len(data)), time.Now().UTC(), jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 1 {
		w.transitioned(jobID, StatusProcessing, StatusReady)
	}
	return nil
}

// Run scans for pending jobs until the context ends. The scan loop backstops
// in-process dispatch: jobs created before a crash still get picked up.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("reportjob: scan: %v", err)
			}
		}
	}
}

func (w *Worker) processPending(ctx context.Context) error {
	rows, err := w.DB.Query(ctx, `
		SELECT id FROM reports WHERE status = $1 ORDER BY created_at LIMIT 10
	`, StatusPending)
	if err != nil {
		return err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.Process(ctx, id); err != nil {
			log.Printf("reportjob: process %s: %v", id, err)
		}
	}
	return nil
}

// SweepStale fails rows that have been processing longer than maxAge,
// measured from the claim timestamp so backlog wait time does not count.
// Failed is a forward transition, so pollers never observe a status moving
// backwards.
func (w *Worker) SweepStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	tag, err := w.DB.Exec(ctx, `
		UPDATE reports
		SET status = $1, error_detail = $2, completed_at = $3
		WHERE status = $4 AND processing_at < $5
	`, StatusFailed, "generation timed out", time.Now().UTC(), StatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Printf("reportjob: swept %d stale processing jobs", n)
		return n, nil
	}
	return 0, nil
}

func (w *Worker) fail(ctx context.Context, jobID, detail string) {
	tag, err := w.DB.Exec(ctx, `
		UPDATE reports SET status = $1, error_detail = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`, StatusFailed, detail, time.Now().UTC(), jobID, StatusProcessing)
	if err != nil {
		log.Printf("reportjob: mark failed %s: %v", jobID, err)
		return
	}
	if tag.RowsAffected() == 1 {
		w.transitioned(jobID, StatusProcessing, StatusFailed)
	}
}

func (w *Worker) transitioned(jobID, from, to string) {
	if w.OnTransition != nil {
		w.OnTransition(jobID, from, to)
	}
}

func (w *Worker) loadJob(ctx context.Context, jobID string) (Job, error) {
	row := w.DB.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM reports WHERE id = $1
	`, jobID)
	return scanJob(row)
}

func (w *Worker) gatherRows(ctx context.Context, job Job) ([]Row, error) {
	var (
		title, description, status string
		createdAt                  time.Time
		docCount, commentCount     int
	)
	err := w.DB.QueryRow(ctx, `
		SELECT c.title, c.description, c.status, c.created_at,
			(SELECT COUNT(*) FROM case_documents d WHERE d.case_id = c.id),
			(SELECT COUNT(*) FROM case_comments m WHERE m.case_id = c.id)
		FROM cases c WHERE c.id = $1
	`, job.CaseID).Scan(&title, &description, &status, &createdAt, &docCount, &commentCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("case no longer exists")
		}
		return nil, err
	}
	rows := []Row{
		{Label: "Case", Value: title},
		{Label: "Status", Value: status},
		{Label: "Opened", Value: createdAt.UTC().Format("2006-01-02")},
		{Label: "Description", Value: description},
		{Label: "Documents", Value: strconv.Itoa(docCount)},
		{Label: "Comments", Value: strconv.Itoa(commentCount)},
	}
	if job.Description != "" {
		rows = append(rows, Row{Label: "Notes", Value: job.Description})
	}
	return rows, nil
}
