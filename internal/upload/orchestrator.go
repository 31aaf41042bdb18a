// Package upload drives one bulk archive through extraction, per-file
// metadata parsing, and persistence, recording progress on the job registry
// as it goes. Each submitted archive is processed by its own goroutine; the
// registry's lock keeps concurrent jobs and status polls coherent.
package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/alliancegenome/litupload/internal/archive"
	"github.com/alliancegenome/litupload/internal/filename"
	"github.com/alliancegenome/litupload/internal/job"
)

// Persist result statuses, mirrored by the reference store.
const (
	PersistSuccess = "success"
	PersistError   = "error"
)

// PersistResult is the outcome of storing one file against its reference.
type PersistResult struct {
	Status         string `json:"status"`
	ReferenceCurie string `json:"reference_curie"`
	FileClass      string `json:"file_class"`
	Error          string `json:"error,omitempty"`
}

// PersistFunc durably stores one file's bytes and metadata. It is the only
// external collaborator the orchestrator depends on; implementations must be
// safe for concurrent calls on different files. A returned error and an
// error-status result are treated alike: the file failed, the batch goes on.
type PersistFunc func(ctx context.Context, fileBytes []byte, meta filename.Metadata) (PersistResult, error)

// Orchestrator processes submitted archives against a shared job registry.
type Orchestrator struct {
	registry    *job.Registry
	scratchRoot string
}

// New constructs an Orchestrator writing scratch files under scratchRoot.
func New(registry *job.Registry, scratchRoot string) *Orchestrator {
	return &Orchestrator{registry: registry, scratchRoot: scratchRoot}
}

// ProcessUpload runs one archive through the full pipeline. Archive-level
// failures (staging, unsupported format, empty payload) mark the job failed;
// per-file failures are recorded on the job and never abort the batch, so a
// batch where every file failed still completes at the job level. The
// per-job scratch directory is removed on every exit path.
func (o *Orchestrator) ProcessUpload(ctx context.Context, jobID string, archiveData []byte, originalName, modAbbreviation string, persist PersistFunc) {
	scratch := filepath.Join(o.scratchRoot, jobID)
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		o.registry.CompleteJob(jobID, false, fmt.Sprintf("create scratch directory: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Printf("job %s: remove scratch directory: %v", jobID, err)
		}
	}()

	stagedName := filepath.Base(originalName)
	if stagedName == "" || stagedName == "." {
		stagedName = "archive.bin"
	}
	if err := os.WriteFile(filepath.Join(scratch, stagedName), archiveData, 0o640); err != nil {
		o.registry.CompleteJob(jobID, false, fmt.Sprintf("stage archive: %v", err))
		return
	}

	files, err := archive.ExtractAndClassify(archiveData, scratch, originalName)
	if err != nil {
		o.registry.CompleteJob(jobID, false, err.Error())
		return
	}
	total := len(files)
	o.registry.UpdateJob(jobID, job.Patch{TotalFiles: &total})
	log.Printf("job %s: extracted %d files from %s", jobID, total, originalName)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			o.registry.CompleteJob(jobID, false, fmt.Sprintf("processing canceled: %v", err))
			return
		}
		base := filepath.Base(f.Path)
		result := o.processFile(ctx, f.Path, scratch, modAbbreviation, persist)
		o.registry.UpdateProgress(jobID, i+1, base, result.Status == PersistSuccess, result.Error)
	}

	o.registry.CompleteJob(jobID, true, "")
}

// processFile parses one extracted file's metadata and persists it. Failures
// come back as an error-status result rather than an error return, making
// the partial-failure contract explicit.
func (o *Orchestrator) processFile(ctx context.Context, path, scratch, modAbbreviation string, persist PersistFunc) PersistResult {
	meta, err := filename.ClassifyAndParse(path, scratch, modAbbreviation)
	if err != nil {
		return PersistResult{Status: PersistError, Error: err.Error()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PersistResult{
			Status:         PersistError,
			ReferenceCurie: meta.ReferenceCurie,
			FileClass:      meta.FileClass,
			Error:          fmt.Sprintf("read extracted file: %v", err),
		}
	}
	result, err := persist(ctx, data, meta)
	if err != nil {
		return PersistResult{
			Status:         PersistError,
			ReferenceCurie: meta.ReferenceCurie,
			FileClass:      meta.FileClass,
			Error:          err.Error(),
		}
	}
	if result.Status != PersistSuccess && result.Error == "" {
		result.Error = "persist reported " + result.Status
	}
	return result
}
