// Package reportjob owns the lifecycle of asynchronous report generation:
// pending jobs are claimed by a worker, rendered, and uploaded to the blob
// store; clients poll status and download when ready.
package reportjob

import "errors"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
)

var ErrInvalidTransition = errors.New("invalid report status transition")

// CanTransition reports whether from -> to is a legal lifecycle step.
// Terminal states absorb: nothing leaves ready or failed.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusReady || to == StatusFailed
	default:
		return false
	}
}

func IsTerminal(status string) bool {
	return status == StatusReady || status == StatusFailed
}

func ValidFormat(format string) bool {
	return format == FormatPDF || format == FormatCSV
}

// ContentType maps a report format to its download media type.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/pdf"
}
