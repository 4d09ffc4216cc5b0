package reportjob

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeReportDB struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	execSQL    []string
	execArgs   [][]any
}

func (f *fakeReportDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, append([]any(nil), args...))
	if f.execFn != nil {
		return f.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeReportDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, sql, args...)
	}
	return &fakeReportRows{}, nil
}

func (f *fakeReportDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRowFn != nil {
		return f.queryRowFn(ctx, sql, args...)
	}
	return fakeReportRow{err: pgx.ErrNoRows}
}

type fakeReportRow struct {
	values []any
	err    error
}

func (r fakeReportRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignReportScan(dest[i], r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeReportRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeReportRows) Close() {}

func (r *fakeReportRows) Err() error { return r.err }

func (r *fakeReportRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT 1") }

func (r *fakeReportRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *fakeReportRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeReportRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("no current row")
	}
	current := r.rows[r.idx-1]
	if len(dest) != len(current) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignReportScan(dest[i], current[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeReportRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.rows[r.idx-1]...), nil
}

func (r *fakeReportRows) RawValues() [][]byte { return nil }

func (r *fakeReportRows) Conn() *pgx.Conn { return nil }

func assignReportScan(dest any, value any) error {
	switch d := dest.(type) {
	case *string:
		v, ok := value.(string)
		if !ok {
			return errors.New("value is not string")
		}
		*d = v
	case **string:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(string)
		if !ok {
			return errors.New("value is not string pointer")
		}
		tmp := v
		*d = &tmp
	case *int:
		switch v := value.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return errors.New("value is not int")
		}
	case *int64:
		switch v := value.(type) {
		case int:
			*d = int64(v)
		case int64:
			*d = v
		default:
			return errors.New("value is not int64")
		}
	case **int64:
		if value == nil {
			*d = nil
			return nil
		}
		switch v := value.(type) {
		case int:
			tmp := int64(v)
			*d = &tmp
		case int64:
			tmp := v
			*d = &tmp
		default:
			return errors.New("value is not int64 pointer")
		}
	case *time.Time:
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not time.Time")
		}
		*d = v
	case **time.Time:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not time.Time pointer")
		}
		tmp := v
		*d = &tmp
	default:
		return errors.New("unsupported scan destination")
	}
	return nil
}

func jobRowValues(job Job) []any {
	values := []any{job.ID, job.Title}
	if job.Description == "" {
		values = append(values, nil)
	} else {
		values = append(values, job.Description)
	}
	values = append(values, job.CaseID, job.CreatedBy, job.Format, job.Status)
	for _, opt := range []string{job.StorageKey, job.ContentType} {
		if opt == "" {
			values = append(values, nil)
		} else {
			values = append(values, opt)
		}
	}
	if job.SizeBytes == 0 {
		values = append(values, nil)
	} else {
		values = append(values, job.SizeBytes)
	}
	if job.ErrorDetail == "" {
		values = append(values, nil)
	} else {
		values = append(values, job.ErrorDetail)
	}
	values = append(values, job.CreatedAt)
	if job.CompletedAt == nil {
		values = append(values, nil)
	} else {
		values = append(values, *job.CompletedAt)
	}
	return values
}
