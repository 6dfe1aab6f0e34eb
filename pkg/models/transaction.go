package models

import (
	"time"
)

// OperationType names a public sync operation
type OperationType string

const (
	OperationDownload OperationType = "download"
	OperationUpload   OperationType = "upload"
	OperationDelete   OperationType = "delete"
	OperationPull     OperationType = "pull"
	OperationPush     OperationType = "push"
)

// TransactionStatus defines the status of a transaction
type TransactionStatus string

const (
	// TransactionStatusRunning transaction is running
	TransactionStatusRunning TransactionStatus = "running"

	// TransactionStatusCompleted transaction completed successfully
	TransactionStatusCompleted TransactionStatus = "completed"

	// TransactionStatusSkipped transaction short-circuited without touching the repository
	TransactionStatusSkipped TransactionStatus = "skipped"

	// TransactionStatusFailed transaction failed
	TransactionStatusFailed TransactionStatus = "failed"
)

// Transaction is the history record of one sync operation
type Transaction struct {
	ID          string              `json:"id"`
	Type        OperationType       `json:"type"`
	Path        string              `json:"path,omitempty"`
	Root        string              `json:"root"`
	RemoteURL   string              `json:"remote_url"`
	Status      TransactionStatus   `json:"status"`
	StartTime   time.Time           `json:"start_time"`
	EndTime     time.Time           `json:"end_time,omitempty"`
	Conflicts   []string            `json:"conflicts,omitempty"`
	ConflictOn  ConflictKind        `json:"conflict_kind,omitempty"`
	Resolutions []AppliedResolution `json:"resolutions,omitempty"`
	Added       []string            `json:"added,omitempty"`
	Modified    []string            `json:"modified,omitempty"`
	Message     string              `json:"message,omitempty"`
	Error       string              `json:"error,omitempty"`

	// ConflictKinds holds the kind reported for each conflicting path
	ConflictKinds map[string]ConflictKind `json:"conflict_kinds,omitempty"`
}

// Duration returns how long the transaction ran
func (t *Transaction) Duration() time.Duration {
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Finish stamps the end time and sets the final status from err
func (t *Transaction) Finish(err error) {
	t.EndTime = time.Now()
	if err != nil {
		t.Status = TransactionStatusFailed
		t.Error = err.Error()
		return
	}
	if t.Status == TransactionStatusRunning {
		t.Status = TransactionStatusCompleted
	}
}
