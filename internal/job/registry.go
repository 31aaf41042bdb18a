package job

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is a thread-safe in-memory table of upload jobs. A single mutex
// guards every operation, reads included, so read-modify-write sequences on
// one job stay atomic with respect to concurrent progress updates.
//
// The registry is constructed once at startup and injected into the handlers
// that need it; it is not package-level state.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Patch is the closed set of job fields callers may update directly.
// Nil members are left untouched.
type Patch struct {
	TotalFiles   *int
	CurrentFile  *string
	ErrorMessage *string
}

// CreateJob inserts a new running job and returns its generated ID.
func (r *Registry) CreateJob(userID, modAbbreviation, filename string, totalFiles int) string {
	id := uuid.NewString()
	now := time.Now().UTC()
	r.mu.Lock()
	r.jobs[id] = &Job{
		JobID:           id,
		UserID:          userID,
		ModAbbreviation: modAbbreviation,
		Filename:        filename,
		Status:          StatusRunning,
		TotalFiles:      totalFiles,
		StartTime:       now,
		LastUpdate:      now,
		ProgressLog:     []LogEntry{},
	}
	r.mu.Unlock()
	log.Printf("created bulk upload job %s for user %s, MOD %s", id, userID, modAbbreviation)
	return id
}

// GetJob returns a snapshot of the job, or nil if it does not exist.
// Absence is not an error at this layer; callers decide.
func (r *Registry) GetJob(jobID string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	return j.clone()
}

// UpdateJob applies a patch to a running job and refreshes its last-update
// timestamp. It reports whether the job exists and is still mutable.
func (r *Registry) UpdateJob(jobID string, patch Patch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != StatusRunning {
		return false
	}
	if patch.TotalFiles != nil {
		j.TotalFiles = *patch.TotalFiles
	}
	if patch.CurrentFile != nil {
		j.CurrentFile = *patch.CurrentFile
	}
	if patch.ErrorMessage != nil {
		j.ErrorMessage = *patch.ErrorMessage
	}
	j.LastUpdate = time.Now().UTC()
	return true
}

// UpdateProgress records the outcome of one processed file: the 1-based
// processed count, the filename, and success or an error message. One entry
// is appended to the rolling log, which keeps only the newest 100.
func (r *Registry) UpdateProgress(jobID string, processed int, currentFile string, success bool, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != StatusRunning {
		return false
	}
	j.ProcessedFiles = processed
	if success {
		j.SuccessfulFiles++
	} else {
		j.FailedFiles++
	}
	j.CurrentFile = currentFile
	if errMsg != "" {
		j.ErrorMessage = errMsg
	}
	j.LastUpdate = time.Now().UTC()
	j.ProgressLog = append(j.ProgressLog, LogEntry{
		Timestamp: j.LastUpdate,
		File:      currentFile,
		Success:   success,
		Error:     errMsg,
	})
	if len(j.ProgressLog) > maxLogEntries {
		j.ProgressLog = j.ProgressLog[len(j.ProgressLog)-maxLogEntries:]
	}
	return true
}

// CompleteJob moves a running job to its terminal state and stamps the end
// time. Completing a missing or already terminal job is a no-op, so the
// terminal status and end time are set exactly once.
func (r *Registry) CompleteJob(jobID string, success bool, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != StatusRunning {
		return
	}
	if success {
		j.Status = StatusCompleted
	} else {
		j.Status = StatusFailed
	}
	now := time.Now().UTC()
	j.EndTime = &now
	j.LastUpdate = now
	if errMsg != "" {
		j.ErrorMessage = errMsg
	}
	log.Printf("bulk upload job %s %s: %d/%d successful, %d failed",
		jobID, j.Status, j.SuccessfulFiles, j.TotalFiles, j.FailedFiles)
}

// GetActiveJobs returns snapshots of running jobs, optionally filtered by
// owner and/or MOD, newest first.
func (r *Registry) GetActiveJobs(userID, modAbbreviation string) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*Job
	for _, j := range r.jobs {
		if j.Status != StatusRunning {
			continue
		}
		if userID != "" && j.UserID != userID {
			continue
		}
		if modAbbreviation != "" && j.ModAbbreviation != modAbbreviation {
			continue
		}
		jobs = append(jobs, j.clone())
	}
	sortByStartDesc(jobs)
	return jobs
}

// GetRecentJobs returns snapshots of the most recent jobs regardless of
// status, optionally filtered by owner, capped to limit.
func (r *Registry) GetRecentJobs(userID string, limit int) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*Job
	for _, j := range r.jobs {
		if userID != "" && j.UserID != userID {
			continue
		}
		jobs = append(jobs, j.clone())
	}
	sortByStartDesc(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// CleanupOldJobs evicts terminal jobs older than maxAge and returns the
// count removed. Running jobs are never evicted; a stuck job must surface as
// stuck rather than silently vanish.
func (r *Registry) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.Status == StatusRunning {
			continue
		}
		if j.StartTime.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("cleaned up %d old bulk upload jobs", removed)
	}
	return removed
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	RunningJobs   int `json:"running_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
}

// GetStats counts jobs by status.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{TotalJobs: len(r.jobs)}
	for _, j := range r.jobs {
		switch j.Status {
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}
	return stats
}

func sortByStartDesc(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.After(jobs[k].StartTime)
	})
}
