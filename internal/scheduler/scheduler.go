package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/engine"
	"github.com/tanq16/smartdl/internal/output"
	"github.com/tanq16/smartdl/internal/utils"
)

// Job is one download of a batch.
type Job struct {
	Mirrors    []string
	OutputPath string
	Config     engine.Config
}

func (j Job) label() string {
	if j.OutputPath != "" {
		return j.OutputPath
	}
	if len(j.Mirrors) > 0 {
		return utils.FileNameFromURL(j.Mirrors[0])
	}
	return "download"
}

// JobsFromBatch turns batch file entries into jobs sharing base. Entry
// values override the base where set.
func JobsFromBatch(entries []utils.BatchEntry, base engine.Config) ([]Job, error) {
	jobs := make([]Job, 0, len(entries))
	for i, entry := range entries {
		cfg := base
		if entry.Threads > 0 {
			cfg.Threads = entry.Threads
		}
		if entry.Hash != "" {
			algorithm, digest, err := utils.ParseHashSpec(entry.Hash)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %v", i+1, err)
			}
			cfg.Hash = &engine.HashSpec{Algorithm: algorithm, Expected: digest}
		}
		jobs = append(jobs, Job{Mirrors: entry.Mirrors, OutputPath: entry.OutputPath, Config: cfg})
	}
	return jobs, nil
}

// Run downloads jobs with numWorkers tasks in flight and reports through
// out. Cancelling ctx stops running tasks and skips queued ones.
func Run(ctx context.Context, jobs []Job, numWorkers int, out *output.Manager) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	jobCh := make(chan Job, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var failed atomic.Int32
	var wg sync.WaitGroup
	for range min(numWorkers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if !processJob(ctx, job, out) {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d downloads did not finish", n, len(jobs))
	}
	return nil
}

func processJob(ctx context.Context, job Job, out *output.Manager) bool {
	id := out.Register(job.label())
	if ctx.Err() != nil {
		out.Warn(id, "Skipped "+job.label())
		return false
	}
	out.SetMessage(id, "Resolving mirrors for "+job.label())
	task, err := engine.New(ctx, job.Mirrors, job.OutputPath, job.Config)
	if err != nil {
		out.ReportError(id, err)
		return false
	}
	if err := task.Start(ctx); err != nil {
		out.ReportError(id, err)
		return false
	}
	out.SetMessage(id, "Downloading "+task.Destination())
	log.Debug().Str("op", "scheduler").Msgf("task %s started for %s", task.ID, task.Destination())

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	reported := make(map[int]bool)
	for waiting := true; waiting; {
		select {
		case <-task.Done():
			waiting = false
		case <-ticker.C:
		}
		p := task.Progress()
		out.SetProgress(id, p.Downloaded, p.Total, p.Speed, p.ETA)
		// chunk-level failures surface as stream lines while running
		for _, c := range newChunkFailures(p.Chunks, reported) {
			out.AddStreamLine(id, fmt.Sprintf("chunk %d failed on %s", c.Index, c.Mirror))
		}
	}

	switch task.Status() {
	case engine.StatusFinished:
		out.Complete(id, fmt.Sprintf("Completed %s (%s in %s)", task.Destination(),
			utils.FormatBytes(uint64(max(task.Size(), 0))), task.Elapsed().Round(time.Millisecond)))
		return task.IsSuccessful()
	case engine.StatusStopped:
		out.Warn(id, "Stopped "+task.Destination())
		return false
	default:
		out.ReportError(id, errors.Join(asErrors(task.Errors())...))
		return false
	}
}

func asErrors(taskErrs []*engine.TaskError) []error {
	errs := make([]error, len(taskErrs))
	for i, err := range taskErrs {
		errs[i] = err
	}
	return errs
}

// newChunkFailures returns failed chunks not yet in reported and marks them.
// Chunks fail in any order, so each index is tracked on its own.
func newChunkFailures(chunks []engine.ChunkState, reported map[int]bool) []engine.ChunkState {
	var failed []engine.ChunkState
	for _, c := range chunks {
		if c.Status != engine.ChunkFailed || c.Cancelled || reported[c.Index] {
			continue
		}
		reported[c.Index] = true
		failed = append(failed, c)
	}
	return failed
}
