package srctrace

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind discriminates the payload carried in Task.Data.
type TaskKind string

const (
	// TaskFetch downloads an upstream artifact, hashes it and stores the
	// resulting file listing.
	TaskFetch = TaskKind("fetch")
	// TaskExpand processes one nested archive entry of an already-stored
	// artifact, scoped to (parent checksum, entry path).
	TaskExpand = TaskKind("expand")
	// TaskIndexSBOM parses a stored bill-of-materials document and
	// enqueues fetches for the source artifacts it references.
	TaskIndexSBOM = TaskKind("sbom")
)

// Task is a queued, retryable unit of ingestion work.
//
// Tasks are deduplicated on Key at enqueue time. A task exceeding the
// retry limit stays in the table as a dead letter, excluded from
// claiming and surfaced via stats.
type Task struct {
	ID        int64
	Key       string
	Kind      TaskKind
	Data      json.RawMessage
	Retries   int
	Error     string
	NotBefore time.Time
	CreatedAt time.Time
}

// FetchTask is the payload for TaskFetch.
type FetchTask struct {
	URL string `json:"url"`
	// SuccessRef, if set, names the ref whose checksum column should be
	// resolved once the fetch lands.
	SuccessRef *DownloadRef `json:"success_ref,omitempty"`
}

// DownloadRef names the package identity a fetch resolves.
type DownloadRef struct {
	Vendor  string `json:"vendor"`
	Package string `json:"package"`
	Version string `json:"version"`
}

// ExpandTask is the payload for TaskExpand.
type ExpandTask struct {
	Parent Digest `json:"parent"`
	Path   string `json:"path"`
	Depth  int    `json:"depth"`
}

// IndexSBOMTask is the payload for TaskIndexSBOM.
type IndexSBOMTask struct {
	Strain string `json:"strain"`
	Chksum Digest `json:"chksum"`
}

// NewTask builds a Task of the given kind, marshaling the payload.
func NewTask(kind TaskKind, key string, payload any) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("task: marshaling %s payload: %w", kind, err)
	}
	return &Task{Key: key, Kind: kind, Data: data}, nil
}

// NewFetchTask enqueues-if-absent semantics key the task on the URL.
func NewFetchTask(url string, ref *DownloadRef) (*Task, error) {
	return NewTask(TaskFetch, "fetch:"+url, &FetchTask{URL: url, SuccessRef: ref})
}

// NewExpandTask keys on the containing checksum and entry path.
func NewExpandTask(parent Digest, path string, depth int) (*Task, error) {
	return NewTask(TaskExpand, fmt.Sprintf("expand:%s:%s", parent, path), &ExpandTask{
		Parent: parent,
		Path:   path,
		Depth:  depth,
	})
}

// NewIndexSBOMTask keys on the strain and document checksum.
func NewIndexSBOMTask(strain string, chksum Digest) (*Task, error) {
	return NewTask(TaskIndexSBOM, fmt.Sprintf("sbom:%s:%s", strain, chksum), &IndexSBOMTask{
		Strain: strain,
		Chksum: chksum,
	})
}
