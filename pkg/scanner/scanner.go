package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// FailureSuffix marks a per-sample details file of a failing sample.
	FailureSuffix = ".nok.details.tsv"

	// PassSuffix marks a per-sample details file of a passing sample.
	PassSuffix = ".ok.details.tsv"

	// NoPassFile is the pass value of a failing sample for which no pass
	// marker exists in any instance.
	NoPassFile = "There is no file"
)

// Marker is a single pass or failure marker observation.
type Marker struct {
	SampleID string
	Instance string
}

// Entry is one row of the pass/fail index: a failing sample, one of its
// pass values and every instance in which it failed.
type Entry struct {
	SampleID string
	Pass     string
	NotOK    []string
}

// Index is the sample to outcome index built from marker files.
type Index struct {
	Failures []Marker
	Passes   []Marker
	Entries  []Entry

	// InputBytes is the total size of all .tsv files seen during the walk.
	InputBytes int64

	bySample map[string][]int
}

// Scan walks baseDir and builds the marker index. Unreadable paths are
// logged and skipped; a missing base directory yields an empty index.
func Scan(log logrus.FieldLogger, baseDir string) *Index {
	log = log.WithField("component", "scanner")

	idx := &Index{}

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("Skipping unreadable path")

			return nil
		}

		if d.IsDir() {
			return nil
		}

		name := d.Name()

		if strings.HasSuffix(name, ".tsv") {
			if info, err := d.Info(); err == nil {
				idx.InputBytes += info.Size()
			}
		}

		instance := InstanceOf(path)

		switch {
		case strings.HasSuffix(name, FailureSuffix):
			idx.Failures = append(idx.Failures, Marker{SampleID: SampleID(name), Instance: instance})
		case strings.HasSuffix(name, PassSuffix):
			idx.Passes = append(idx.Passes, Marker{SampleID: SampleID(name), Instance: instance})
		}

		return nil
	})
	if err != nil {
		log.WithError(err).WithField("base_dir", baseDir).Error("Error scanning base directory")
	}

	idx.build()

	log.WithFields(logrus.Fields{
		"failures": len(idx.Failures),
		"passes":   len(idx.Passes),
		"entries":  len(idx.Entries),
	}).Info("Scanned marker files")

	return idx
}

// NewIndex builds an index from already collected markers.
func NewIndex(failures, passes []Marker) *Index {
	idx := &Index{Failures: failures, Passes: passes}
	idx.build()

	return idx
}

// SampleID returns the filename text before the first underscore.
func SampleID(name string) string {
	id, _, _ := strings.Cut(filepath.Base(name), "_")

	return id
}

// InstanceOf returns the run-instance name of a marker file, which is the
// name of the parent of the directory holding the file.
func InstanceOf(path string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(path)))
}

// build left-joins failures to passes on sample ID and groups the result by
// (sample, pass value).
func (idx *Index) build() {
	passes := make(map[string][]string, len(idx.Passes))
	for _, p := range idx.Passes {
		passes[p.SampleID] = append(passes[p.SampleID], p.Instance)
	}

	type key struct{ sample, pass string }

	groups := make(map[key]*Entry)
	order := make([]key, 0)

	add := func(k key, instance string) {
		e, ok := groups[k]
		if !ok {
			e = &Entry{SampleID: k.sample, Pass: k.pass}
			groups[k] = e
			order = append(order, k)
		}

		e.NotOK = AppendUnique(e.NotOK, instance)
	}

	for _, f := range idx.Failures {
		pv, ok := passes[f.SampleID]
		if !ok {
			add(key{f.SampleID, NoPassFile}, f.Instance)

			continue
		}

		for _, p := range pv {
			add(key{f.SampleID, p}, f.Instance)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].sample != order[j].sample {
			return order[i].sample < order[j].sample
		}

		return order[i].pass < order[j].pass
	})

	idx.Entries = make([]Entry, 0, len(order))
	idx.bySample = make(map[string][]int, len(order))

	for _, k := range order {
		idx.bySample[k.sample] = append(idx.bySample[k.sample], len(idx.Entries))
		idx.Entries = append(idx.Entries, *groups[k])
	}
}

// Lookup returns the index entries of a sample.
func (idx *Index) Lookup(sampleID string) []Entry {
	positions := idx.bySample[sampleID]
	if len(positions) == 0 {
		return nil
	}

	out := make([]Entry, 0, len(positions))
	for _, p := range positions {
		out = append(out, idx.Entries[p])
	}

	return out
}

// PassStatus returns the unique pass values of a sample in index order.
func (idx *Index) PassStatus(sampleID string) []string {
	var out []string
	for _, e := range idx.Lookup(sampleID) {
		out = AppendUnique(out, e.Pass)
	}

	return out
}

// Samples returns the sorted unique sample IDs present in the index.
func (idx *Index) Samples() []string {
	out := make([]string, 0, len(idx.bySample))
	for s := range idx.bySample {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}

// AppendUnique appends v to list unless it is already present, preserving
// first-appearance order.
func AppendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}

	return append(list, v)
}
