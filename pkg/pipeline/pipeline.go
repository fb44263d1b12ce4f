package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"github.com/docker/go-units"
	"github.com/qphi/dragen-report/pkg/extractor"
	"github.com/qphi/dragen-report/pkg/fsutil"
	"github.com/qphi/dragen-report/pkg/report"
	"github.com/qphi/dragen-report/pkg/scanner"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configures a single report generation run.
type Options struct {
	// BaseDir is the root of the validator log tree.
	BaseDir string

	// Instances is a glob relative to BaseDir selecting run-instance
	// directories.
	Instances string

	// Output is the report file path. It is overwritten.
	Output string

	// Concurrency bounds the number of instances extracted in parallel.
	// Values below 1 mean sequential.
	Concurrency int

	// Owner optionally sets the report file ownership.
	Owner *fsutil.OwnerConfig
}

// extract is swapped in tests.
var extract = extractor.Extract

// Result summarizes a finished run.
type Result struct {
	Report       *report.Report
	Instances    int
	Extracted    int
	Skipped      int
	Failed       int
	BytesWritten int64
}

// Run scans the base directory, extracts failure details from every
// matching instance and writes the merged report. Instance-level errors are
// logged and do not abort the run.
func Run(ctx context.Context, log logrus.FieldLogger, opts Options) (*Result, error) {
	log = log.WithField("component", "pipeline")

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	idx := scanner.Scan(log, opts.BaseDir)

	checkMemory(ctx, log, idx.InputBytes)

	dirs, err := ResolveInstances(opts.BaseDir, opts.Instances)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"base_dir":    opts.BaseDir,
		"pattern":     opts.Instances,
		"instances":   len(dirs),
		"concurrency": opts.Concurrency,
	}).Info("Extracting failure details")

	results := make([]*extractor.InstanceResult, len(dirs))

	var extracted, skipped, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			instLog := log.WithField("instance", filepath.Base(dir))

			res, err := extractSafe(instLog, dir, idx)

			switch {
			case errors.Is(err, extractor.ErrNoFailures):
				instLog.Info("Samples in instance are PASS, skipping")
				skipped.Add(1)
			case err != nil:
				instLog.WithError(err).Error("Error processing instance files")
				failed.Add(1)
			default:
				instLog.WithField("rows", len(res.Rows)).Info("Error samples in instance")
				results[i] = res
				extracted.Add(1)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extracting instances: %w", err)
	}

	rpt := report.Aggregate(results, idx)

	n, err := report.Write(opts.Output, rpt, opts.Owner)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"output": opts.Output,
		"rows":   len(rpt.Rows),
		"size":   units.HumanSize(float64(n)),
	}).Info("Final report written")

	return &Result{
		Report:       rpt,
		Instances:    len(dirs),
		Extracted:    int(extracted.Load()),
		Skipped:      int(skipped.Load()),
		Failed:       int(failed.Load()),
		BytesWritten: n,
	}, nil
}

// ResolveInstances returns the sorted directories under baseDir matching
// pattern. Non-directory matches are ignored.
func ResolveInstances(baseDir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(baseDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("matching instances %q: %w", pattern, err)
	}

	dirs := make([]string, 0, len(matches))

	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}

		dirs = append(dirs, m)
	}

	sort.Strings(dirs)

	return dirs, nil
}

// extractSafe runs the extractor for one instance and converts a panic into
// an error so a single broken instance cannot abort the whole run.
func extractSafe(
	log logrus.FieldLogger,
	dir string,
	idx *scanner.Index,
) (res *extractor.InstanceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Debug("Recovered from panic")

			res = nil
			err = fmt.Errorf("panic while extracting %s: %v", dir, r)
		}
	}()

	return extract(log, dir, idx)
}

// checkMemory warns when the input volume exceeds available memory, since
// every table is materialized in memory.
func checkMemory(ctx context.Context, log logrus.FieldLogger, inputBytes int64) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.WithError(err).Debug("Unable to read memory statistics")

		return
	}

	fields := logrus.Fields{
		"input":     units.HumanSize(float64(inputBytes)),
		"available": units.HumanSize(float64(vm.Available)),
	}

	if inputBytes > 0 && uint64(inputBytes) > vm.Available {
		log.WithFields(fields).Warn("Input volume exceeds available memory")

		return
	}

	log.WithFields(fields).Debug("Memory preflight passed")
}
