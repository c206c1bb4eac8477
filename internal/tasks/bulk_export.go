package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/setlist/internal/formatter"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// ManifestName is the file written next to the exported lists.
const ManifestName = "export_manifest.json"

// ExportOpts contains configuration for bulk list exports.
type ExportOpts struct {
	Format      formatter.Format // Export format (default: md)
	OutputDir   string           // Base output directory (default: setlist_export_{epoch})
	NumWorkers  int              // Concurrent workers (default: 4, max: 10)
	RateLimit   float64          // Catalog lookups per second (default: 10)
	SkipDrafts  bool             // Export saved lists only
	SkipRefresh bool             // Write cached item content even when a catalog is set
}

type exportJob struct {
	index int
	list  models.List
	draft bool
}

type indexedResult struct {
	index  int
	result ListExportResult
}

// Export writes the lists named by ids, or every list of src when ids is empty, concurrently.
//
// A list that fails does not stop the others. The manifest records every outcome.
func (e *Exporter) Export(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	src Source,
	ids []string,
	opts ExportOpts,
) (*ExportResult, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no list source", shared.ErrServiceUnavailable)
	}

	if opts.Format == "" {
		opts.Format = formatter.Markdown
	}
	format, err := formatter.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	opts.Format = format
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("setlist_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs, missing := e.selectLists(src, ids, opts.SkipDrafts)
	total := len(jobs) + len(missing)
	e.sendProgress(prog, fetchListsUpdate(total))
	e.logger.Debug("bulk export started", "lists", total, "format", opts.Format, "dir", opts.OutputDir)

	var ref *refresher
	if e.catalog != nil && !opts.SkipRefresh {
		ref = newRefresher(e.catalog, opts.RateLimit)
	}

	queue := make(chan exportJob, len(jobs))
	results := make(chan indexedResult, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, queue, results, ref, total, prog, opts)
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			select {
			case <-ctx.Done():
				return
			case queue <- j:
			}
		}
	}()

	for _, res := range missing {
		results <- res
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &ExportResult{
		Format:          opts.Format,
		TotalLists:      total,
		OutputDirectory: opts.OutputDir,
		Results:         make([]ListExportResult, total),
	}

	completed := 0
	for res := range results {
		completed++
		result.Results[res.index] = res.result

		if res.result.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, total, res.result))
		} else {
			result.FailedExports++
			e.logger.Warn("list export failed", "id", res.result.ListID, "error", res.result.Error)
			e.sendProgress(prog, exportFailedUpdate(completed, total, res.result))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, ManifestName)
	data, err := shared.MarshalJSON(result, true)
	if err != nil {
		return result, fmt.Errorf("export completed but failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	e.sendProgress(prog, manifestUpdate(manifestPath))

	e.logger.Info("bulk export finished", "ok", result.SuccessfulExports, "failed", result.FailedExports, "manifest", manifestPath)
	return result, nil
}

// selectLists snapshots the requested lists in source order, or in ids order when ids are given.
//
// Unknown ids come back as failed results.
func (e *Exporter) selectLists(src Source, ids []string, skipDrafts bool) ([]exportJob, []indexedResult) {
	lists := src.Lists()
	var jobs []exportJob
	var missing []indexedResult

	if len(ids) == 0 {
		for _, l := range lists {
			draft := src.IsDraft(l.ID)
			if skipDrafts && draft {
				continue
			}
			jobs = append(jobs, exportJob{index: len(jobs), list: l, draft: draft})
		}
		return jobs, nil
	}

	byID := make(map[string]models.List, len(lists))
	for _, l := range lists {
		byID[l.ID] = l
	}

	for i, id := range ids {
		l, ok := byID[id]
		if !ok {
			err := fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
			missing = append(missing, indexedResult{index: i, result: ListExportResult{
				ListID:   id,
				ListName: fmt.Sprintf("Unknown (%s)", id),
				Error:    err,
				Message:  err.Error(),
			}})
			continue
		}
		jobs = append(jobs, exportJob{index: i, list: l, draft: src.IsDraft(id)})
	}
	return jobs, missing
}

// exportWorker is a worker goroutine that exports lists from the jobs channel.
func (e *Exporter) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- indexedResult,
	ref *refresher,
	total int,
	prog chan<- ProgressUpdate,
	opts ExportOpts,
) {
	defer wg.Done()

	for j := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ref != nil {
			e.sendProgress(prog, resolveItemsUpdate(j.index+1, total, j.list.Name, j.list.Len()))
		}
		results <- indexedResult{index: j.index, result: e.exportSingleList(ctx, j, ref, opts)}
	}
}

// exportSingleList refreshes and writes one list.
func (e *Exporter) exportSingleList(ctx context.Context, j exportJob, ref *refresher, opts ExportOpts) ListExportResult {
	result := ListExportResult{
		ListID:   j.list.ID,
		ListName: j.list.Name,
		Draft:    j.draft,
		Items:    j.list.Len(),
	}

	fail := func(err error) ListExportResult {
		result.Error = err
		result.Message = err.Error()
		return result
	}

	list := j.list
	if ref != nil {
		refreshed, stale, err := ref.refresh(ctx, list)
		if err != nil {
			return fail(err)
		}
		list = refreshed
		result.Stale = stale
	}

	path := filepath.Join(opts.OutputDir, fmt.Sprintf("%s.%s", fileSafe(list.ID), opts.Format))
	written, err := formatter.WriteExport(list, opts.Format, path)
	if err != nil {
		return fail(fmt.Errorf("%s export failed: %w", opts.Format, err))
	}

	result.File = written
	result.Success = true
	return result
}

func fileSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id)
}
