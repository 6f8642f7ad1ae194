package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus is the queue state of a background job
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusProcessing        JobStatus = "processing"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusFailed            JobStatus = "failed"
	JobStatusPermanentlyFailed JobStatus = "permanently_failed"
	JobStatusCancelled         JobStatus = "cancelled"
)

// JobType selects the processor that runs a job
type JobType string

const (
	JobTypeTrainingCycle JobType = "training_cycle"
	JobTypeJobCleanup    JobType = "job_cleanup"
)

// AllJobTypes lists every job type a worker may be asked to claim
var AllJobTypes = []JobType{JobTypeTrainingCycle, JobTypeJobCleanup}

// JobErrorType classifies why a job attempt failed
type JobErrorType string

const (
	ErrorTypeData     JobErrorType = "data"     // too few or malformed examples
	ErrorTypeConflict JobErrorType = "conflict" // lineage locked by another run
	ErrorTypeTraining JobErrorType = "training"
	ErrorTypeSystem   JobErrorType = "system"
)

// Permanent reports whether retrying the job cannot change the outcome
func (t JobErrorType) Permanent() bool {
	return t == ErrorTypeData || t == ErrorTypeConflict
}

// StructuredJobError carries the classification a processor attaches to a
// failure so the queue can decide between retrying and giving up
type StructuredJobError struct {
	Type     JobErrorType
	Code     string
	Message  string
	Details  string
	Original error
}

func (e *StructuredJobError) Error() string { return e.Message }

func (e *StructuredJobError) Unwrap() error { return e.Original }

func NewJobError(errType JobErrorType, code, message, details string, original error) *StructuredJobError {
	return &StructuredJobError{Type: errType, Code: code, Message: message, Details: details, Original: original}
}

func NewSystemError(code, message, details string, original error) *StructuredJobError {
	return NewJobError(ErrorTypeSystem, code, message, details, original)
}

// Job is one queued training cycle or maintenance sweep. RetryCount counts
// failed attempts; the job is claimed again while RetryCount <= MaxRetries.
type Job struct {
	gorm.Model
	Type       JobType    `json:"type" gorm:"not null;index:idx_jobs_type_status"`
	Status     JobStatus  `json:"status" gorm:"default:'pending';index:idx_jobs_status_priority"`
	Priority   int        `json:"priority" gorm:"default:0;index:idx_jobs_status_priority"`
	Payload    JobPayload `json:"payload" gorm:"type:json"`
	Result     JobResult  `json:"result,omitempty" gorm:"type:json"`
	CreatedBy  string     `json:"created_by,omitempty"`
	WorkerID   string     `json:"worker_id,omitempty"`
	Progress   int        `json:"progress" gorm:"default:0"`
	MaxRetries int        `json:"max_retries" gorm:"default:1"`
	RetryCount int        `json:"retry_count" gorm:"default:0"`

	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastFailedAt *time.Time `json:"last_failed_at"`

	Error        string `json:"error,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobPayload holds the parameters a job was enqueued with, stored as JSON
type JobPayload map[string]interface{}

func (p JobPayload) Value() (driver.Value, error) { return jsonValue(p) }

func (p *JobPayload) Scan(value interface{}) error {
	return scanJSON(value, (*map[string]interface{})(p))
}

// JobResult holds what a processor reports on completion
type JobResult map[string]interface{}

func (r JobResult) Value() (driver.Value, error) { return jsonValue(r) }

func (r *JobResult) Scan(value interface{}) error {
	return scanJSON(value, (*map[string]interface{})(r))
}

func jsonValue(m map[string]interface{}) (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func scanJSON(value interface{}, dst *map[string]interface{}) error {
	switch v := value.(type) {
	case nil:
		*dst = map[string]interface{}{}
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into a JSON map", value)
	}
}

func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount <= j.MaxRetries
}

// IsTerminal reports whether no worker will pick the job up again
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled, JobStatusPermanentlyFailed:
		return true
	case JobStatusFailed:
		return !j.IsRetryable()
	}
	return false
}

func (j *Job) GetPayloadString(key string) (string, bool) {
	s, ok := j.Payload[key].(string)
	return s, ok
}

func (j *Job) GetPayloadBool(key string) (bool, bool) {
	b, ok := j.Payload[key].(bool)
	return b, ok
}

// GetPayloadFloat accepts any numeric payload value; payloads read back
// from the database decode numbers as float64
func (j *Job) GetPayloadFloat(key string) (float64, bool) {
	switch v := j.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (j *Job) GetPayloadInt(key string) (int, bool) {
	f, ok := j.GetPayloadFloat(key)
	return int(f), ok
}
