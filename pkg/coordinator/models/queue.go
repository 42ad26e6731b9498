package models

import "time"

// Job is a request to archive one (work_id, file_format, updated_time).
//
// A job transitions complete false→true exactly once; once complete it is
// terminal. Success is only meaningful when Complete is true.
type Job struct {
	JobID         int64      `gorm:"column:job_id;primaryKey;autoIncrement" json:"job_id"`
	WorkID        int64      `gorm:"column:work_id;index;not null" json:"work_id"`
	FileFormat    FileFormat `gorm:"column:file_format;size:8;not null" json:"file_format"`
	UpdatedTime   int64      `gorm:"column:updated_time;not null" json:"updated_time"`
	Title         string     `gorm:"column:title;size:500" json:"title,omitempty"`
	Author        string     `gorm:"column:author;size:500" json:"author,omitempty"`
	SubmittedTime time.Time  `gorm:"column:submitted_time;index;not null" json:"submitted_time"`
	SubmittedBy   string     `gorm:"column:submitted_by;size:255" json:"submitted_by"`
	Complete      bool       `gorm:"column:complete;default:false;not null" json:"complete"`
	Success       bool       `gorm:"column:success;default:false;not null" json:"success"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "queue"
}

// JobStatus is the client-visible lifecycle state derived from (complete, success).
type JobStatus string

const (
	JobInQueue   JobStatus = "queued"
	JobFailed    JobStatus = "failed"
	JobCompleted JobStatus = "completed"
)

// Status derives the client-visible state of the job.
func (j *Job) Status() JobStatus {
	switch {
	case !j.Complete:
		return JobInQueue
	case j.Success:
		return JobCompleted
	default:
		return JobFailed
	}
}

// Dispatch is a single time-limited lease of a job to a worker.
//
// ReportCode is a random 16-bit capability generated per dispatch; it is
// revealed once, in the response that assigned the job, and must accompany
// every later submit or failure report for this dispatch.
type Dispatch struct {
	DispatchID       int64     `gorm:"column:dispatch_id;primaryKey;autoIncrement" json:"dispatch_id"`
	JobID            int64     `gorm:"column:job_id;index;not null" json:"job_id"`
	DispatchedToName string    `gorm:"column:dispatched_to_name;size:255;not null" json:"dispatched_to_name"`
	DispatchedTime   time.Time `gorm:"column:dispatched_time;index;not null" json:"dispatched_time"`
	ReportCode       int16     `gorm:"column:report_code;not null" json:"-"`
	FailReported     bool      `gorm:"column:fail_reported;default:false;not null" json:"fail_reported"`
	FailStatus       int       `gorm:"column:fail_status;default:0;not null" json:"fail_status"`
	Complete         bool      `gorm:"column:complete;default:false;not null" json:"complete"`
	FoundAsDuplicate bool      `gorm:"column:found_as_duplicate;default:false;not null" json:"found_as_duplicate"`
}

// TableName returns the table name for Dispatch.
func (Dispatch) TableName() string {
	return "dispatches"
}

// Terminal reports whether the dispatch can no longer be acted upon.
func (d *Dispatch) Terminal() bool {
	return d.FailReported || d.Complete
}
