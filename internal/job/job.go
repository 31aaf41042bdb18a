// Package job tracks bulk upload jobs in memory. The registry is a live
// progress tracker, not an audit log: nothing survives a process restart.
package job

import (
	"time"
)

// Status is the lifecycle state of an upload job. Transitions only go from
// running to one of the terminal states, never back.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// maxLogEntries caps the rolling per-file outcome log.
const maxLogEntries = 100

// LogEntry records the outcome of one processed file.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Job is one in-flight or completed bulk upload.
type Job struct {
	JobID           string     `json:"job_id"`
	UserID          string     `json:"user_id"`
	ModAbbreviation string     `json:"mod_abbreviation"`
	Filename        string     `json:"filename"`
	Status          Status     `json:"status"`
	TotalFiles      int        `json:"total_files"`
	ProcessedFiles  int        `json:"processed_files"`
	SuccessfulFiles int        `json:"successful_files"`
	FailedFiles     int        `json:"failed_files"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	LastUpdate      time.Time  `json:"last_update"`
	CurrentFile     string     `json:"current_file"`
	ErrorMessage    string     `json:"error_message"`
	ProgressLog     []LogEntry `json:"progress_log"`
}

// ProgressPercentage reports processed/total as a percentage, 0 when the
// total is not yet known.
func (j *Job) ProgressPercentage() float64 {
	if j.TotalFiles == 0 {
		return 0
	}
	return float64(j.ProcessedFiles) / float64(j.TotalFiles) * 100
}

// DurationSeconds reports elapsed time, using now for jobs still running.
func (j *Job) DurationSeconds() float64 {
	end := time.Now().UTC()
	if j.EndTime != nil {
		end = *j.EndTime
	}
	return end.Sub(j.StartTime).Seconds()
}

// View is the serialization of a Job snapshot handed to API callers,
// carrying the derived progress fields alongside the raw record.
type View struct {
	Job
	ProgressPercentage float64 `json:"progress_percentage"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// View builds the serializable snapshot.
func (j *Job) View() View {
	return View{
		Job:                *j,
		ProgressPercentage: j.ProgressPercentage(),
		DurationSeconds:    j.DurationSeconds(),
	}
}

// clone deep-copies a job so callers never share the registry's slices.
func (j *Job) clone() *Job {
	cp := *j
	if j.EndTime != nil {
		end := *j.EndTime
		cp.EndTime = &end
	}
	cp.ProgressLog = make([]LogEntry, len(j.ProgressLog))
	copy(cp.ProgressLog, j.ProgressLog)
	return &cp
}
