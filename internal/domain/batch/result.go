// Package batch describes per-document outcomes of a bulk ingestion.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of ingesting one document.
type Result struct {
	path   string
	status ItemStatus
	chunks int
	err    error
}

// NewOK creates a successful result for a document written as chunks records.
func NewOK(path string, chunks int) Result {
	return Result{path: path, status: StatusOK, chunks: chunks}
}

// NewError creates a failed batch result.
func NewError(path string, err error) Result { return Result{path: path, status: StatusError, err: err} }

// Path returns the source document path.
func (r Result) Path() string { return r.path }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Chunks returns the number of chunks written.
func (r Result) Chunks() int { return r.chunks }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Failed counts results with StatusError.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.status == StatusError {
			n++
		}
	}
	return n
}
