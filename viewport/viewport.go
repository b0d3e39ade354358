// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package viewport

import (
	"context"
	"sync"
	"time"

	"github.com/biogo/store/interval"
	"golang.org/x/sync/errgroup"

	"github.com/genomeview/aligncore/align"
	"github.com/genomeview/aligncore/appctx"
	"github.com/genomeview/aligncore/coverage"
)

// Viewport identifies one UI track slot. CanvasWidth is the current pixel
// width used to derive scale (bp/px) for row packing and coverage binning;
// it may change across calls (e.g. on resize) without affecting identity.
type Viewport struct {
	ID          string
	CanvasWidth int
}

// Scheduler owns every opened file's SampleFile and the UI-wide NavState
// they all consult (spec §4.7, §5).
type Scheduler struct {
	cfg    Config
	appCtx *appctx.Context
	nav    *NavState

	mu    sync.Mutex
	files map[string]*SampleFile
}

// NewScheduler returns a Scheduler sharing appCtx across every file it
// opens (spec §4.13: the Application Context is constructed once and
// threaded into the scheduler, never a package-level global).
func NewScheduler(appCtx *appctx.Context, opts ...Option) *Scheduler {
	return &Scheduler{
		cfg:    buildConfig(opts),
		appCtx: appCtx,
		nav:    &NavState{},
		files:  make(map[string]*SampleFile),
	}
}

// Nav returns the scheduler's shared navigation-state flags.
func (s *Scheduler) Nav() *NavState { return s.nav }

// Open registers reader (an already-opened bam.Decoder, cram.Decoder, or
// any other align.Reader) as a new SampleFile, keyed by its Path.
func (s *Scheduler) Open(reader align.Reader) *SampleFile {
	sf := newSampleFile(reader, s.cfg, s.appCtx, s.nav)
	s.mu.Lock()
	s.files[reader.Path()] = sf
	s.mu.Unlock()
	return sf
}

// File returns the SampleFile registered for path, if any.
func (s *Scheduler) File(path string) (*SampleFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, ok := s.files[path]
	return sf, ok
}

// Close shuts down every registered SampleFile's worker and underlying
// reader, returning the first error encountered.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	files := make([]*SampleFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.files = make(map[string]*SampleFile)
	s.mu.Unlock()

	var first error
	for _, f := range files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SampleFile is one opened alignment file's single-threaded worker plus
// its Viewport→StackCache mapping (spec §4.7).
type SampleFile struct {
	reader align.Reader
	cfg    Config
	appCtx *appctx.Context
	nav    *NavState

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	jobs   chan func(context.Context)

	mu        sync.Mutex
	viewports map[string]*viewportState
}

func newSampleFile(reader align.Reader, cfg Config, appCtx *appctx.Context, nav *NavState) *SampleFile {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	sf := &SampleFile{
		reader: reader, cfg: cfg, appCtx: appCtx, nav: nav,
		ctx: ctx, cancel: cancel, group: group,
		jobs:      make(chan func(context.Context), 16),
		viewports: make(map[string]*viewportState),
	}
	group.Go(func() error {
		sf.runWorker(gctx)
		return nil
	})
	return sf
}

// runWorker is the per-file worker loop: it services submitted jobs in
// FIFO order, one at a time, so reader calls are never interleaved (spec
// §5 "Per-file worker").
func (sf *SampleFile) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-sf.jobs:
			if !ok {
				return
			}
			job(ctx)
		}
	}
}

func (sf *SampleFile) submit(job func(context.Context)) {
	select {
	case sf.jobs <- job:
	case <-sf.ctx.Done():
	}
}

// Close cancels all in-flight and queued work, waits for the worker to
// exit, and closes the underlying reader.
func (sf *SampleFile) Close() error {
	sf.cancel()
	close(sf.jobs)
	sf.group.Wait()
	return sf.reader.Close()
}

// viewportState is one Viewport's StackCache plus its SampledCoverage
// engine, CoverageCache, and fetch-scheduling bookkeeping. Its mutex
// guards the small scheduling fields and the published snapshot; the
// slow, blocking reader I/O runs only on the owning SampleFile's worker
// goroutine (spec §5 "Suspension/blocking points").
type viewportState struct {
	mu sync.Mutex

	chrom        string
	start, end   int
	hasData      bool
	coverageOnly bool
	scale        float64
	reads        []*align.Record
	maxRow       int
	version      uint64

	fetching    bool
	fetchGen    uint64
	fetchChrom  string
	fetchStart  int
	fetchEnd    int
	fetchCancel context.CancelFunc

	coverageGen    uint64
	coverageCancel context.CancelFunc

	errorStreak int

	coverageEngine *coverage.Engine
	coverageCache  *coverage.CoverageCache
}

func newViewportState(cfg Config) *viewportState {
	return &viewportState{
		maxRow:         -1,
		coverageEngine: coverage.NewEngine(cfg.Smoothing),
		coverageCache:  coverage.NewCoverageCache(),
	}
}

// clear resets the cached region and reads (spec §4.7 cache policy 2/3).
// Callers must hold vs.mu.
func (vs *viewportState) clear() {
	vs.chrom = ""
	vs.start, vs.end = 0, 0
	vs.hasData = false
	vs.reads = nil
	vs.maxRow = -1
	vs.version++
}

func (sf *SampleFile) stateFor(vp Viewport) *viewportState {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	vs, ok := sf.viewports[vp.ID]
	if !ok {
		vs = newViewportState(sf.cfg)
		sf.viewports[vp.ID] = vs
	}
	return vs
}

// regionsDisjoint reports whether [s1,e1) and [s2,e2) share no bp, using
// the half-open interval overlap test biogo/store/interval provides.
func regionsDisjoint(s1, e1, s2, e2 int) bool {
	a := interval.IntRange{Start: s1, End: e1}
	b := interval.IntRange{Start: s2, End: e2}
	return !a.Overlap(b)
}

// GetReads implements spec §4.7's get_reads: it returns the viewport's
// current (possibly stale) cached reads immediately, applying the cache
// policy and scheduling a fetch in the background when needed.
func (sf *SampleFile) GetReads(chrom string, start, end int, vp Viewport, blockDuringNavigation, coverageOnly bool) []*align.Record {
	vs := sf.stateFor(vp)
	vs.mu.Lock()

	viewLength := end - start
	if viewLength > sf.cfg.MaxBamViewLength {
		// Cache policy 1: beyond the configured bp ceiling, the read cache
		// is cleared; sampled coverage takes over.
		vs.clear()
		vs.mu.Unlock()
		return nil
	}

	if vs.hasData && (vs.chrom != chrom || regionsDisjoint(vs.start, vs.end, start, end)) {
		vs.clear() // cache policy 2
	}
	if vs.hasData && vs.coverageOnly != coverageOnly {
		vs.clear() // cache policy 3: mode switch
	}
	vs.coverageOnly = coverageOnly

	canvasWidth := vp.CanvasWidth
	if canvasWidth < 1 {
		canvasWidth = 1
	}
	scale := float64(viewLength) / float64(canvasWidth)

	if vs.hasData && vs.chrom == chrom && start >= vs.start && end <= vs.end {
		// Cache policy 4: hit.
		if !coverageOnly && len(vs.reads) > 0 && scaleChanged(vs.scale, scale) {
			vs.maxRow = repack(vs.reads, scale)
			vs.scale = scale
		}
		out := vs.reads
		vs.mu.Unlock()
		return out
	}

	if blockDuringNavigation && sf.nav.Active() {
		out := vs.reads
		vs.mu.Unlock()
		return out
	}

	// Cache policy 5: inflate and submit a fetch.
	margin := int(0.3 * float64(viewLength))
	if margin < 1000 {
		margin = 1000
	}
	fetchStart := start - margin
	if fetchStart < 1 {
		fetchStart = 1
	}
	fetchEnd := end + margin

	if vs.fetching && vs.fetchChrom == chrom && vs.fetchStart == fetchStart && vs.fetchEnd == fetchEnd {
		// Already in flight for this exact region: coalesce.
		out := vs.reads
		vs.mu.Unlock()
		return out
	}

	// Reads have priority: cancel any pending fetch and any in-progress
	// sampled-coverage job for this viewport before submitting a new one.
	if vs.fetchCancel != nil {
		vs.fetchCancel()
	}
	if vs.coverageCancel != nil {
		vs.coverageCancel()
		vs.coverageCancel = nil
	}

	jobCtx, cancel := context.WithCancel(sf.ctx)
	vs.fetchGen++
	myGen := vs.fetchGen
	vs.fetching = true
	vs.fetchChrom, vs.fetchStart, vs.fetchEnd = chrom, fetchStart, fetchEnd
	vs.fetchCancel = cancel
	out := vs.reads
	vs.mu.Unlock()

	sf.submit(func(context.Context) {
		sf.runFetch(jobCtx, vs, myGen, chrom, fetchStart, fetchEnd, coverageOnly, scale)
	})

	return out
}

// runFetch executes query_streaming for [fetchStart,fetchEnd) on the
// worker goroutine, row-packing incrementally and publishing progress
// snapshots, then committing final results (spec §4.7 "Fetch body").
func (sf *SampleFile) runFetch(ctx context.Context, vs *viewportState, gen uint64, chrom string, fetchStart, fetchEnd int, coverageOnly bool, scale float64) {
	var buf []*align.Record
	packer := newRowPacker(gapFor(scale))
	lastPublish := time.Now()

	publish := func() {
		snapshot := make([]*align.Record, len(buf))
		copy(snapshot, buf)
		vs.mu.Lock()
		vs.reads = snapshot
		vs.version++
		if !coverageOnly {
			vs.maxRow = packer.maxRow()
		}
		vs.mu.Unlock()
		if sf.appCtx != nil {
			sf.appCtx.Redraw()
		}
	}

	err := sf.reader.QueryStreaming(ctx, chrom, fetchStart, fetchEnd, func(rec *align.Record) align.Action {
		if !coverageOnly {
			packer.assign(rec)
		}
		buf = append(buf, rec)
		if time.Since(lastPublish) >= sf.cfg.PublishInterval {
			publish()
			lastPublish = time.Now()
		}
		if ctx.Err() != nil {
			return align.Stop
		}
		return align.Continue
	})

	vs.mu.Lock()
	if vs.fetchGen == gen {
		vs.fetching = false
		vs.fetchCancel = nil
	}

	if ctx.Err() != nil {
		// Cancelled: do not commit as final, leave the previous snapshot.
		vs.mu.Unlock()
		return
	}

	if err != nil {
		vs.errorStreak++
		if vs.errorStreak <= sf.cfg.MaxSuppressedErrors && sf.cfg.Logger != nil {
			sf.cfg.Logger.Printf("viewport: fetch %s:%d-%d failed: %v", chrom, fetchStart, fetchEnd, err)
		}
		vs.mu.Unlock()
		return
	}

	vs.errorStreak = 0
	vs.chrom = chrom
	vs.start, vs.end = fetchStart, fetchEnd
	vs.hasData = true
	vs.scale = scale

	snapshot := make([]*align.Record, len(buf))
	copy(snapshot, buf)
	if !coverageOnly {
		vs.maxRow = repack(snapshot, scale)
	} else {
		vs.maxRow = -1
	}
	vs.reads = snapshot
	vs.version++
	vs.mu.Unlock()

	if sf.appCtx != nil {
		sf.appCtx.Redraw()
	}
}

// IsLoading implements spec §4.7's is_loading.
func (sf *SampleFile) IsLoading(vp Viewport) bool {
	vs := sf.stateFor(vp)
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.fetching
}

// MaxRow implements spec §4.7's max_row.
func (sf *SampleFile) MaxRow(vp Viewport) int {
	vs := sf.stateFor(vp)
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.maxRow
}

// RequestSampledCoverage implements spec §4.7's request_sampled_coverage:
// it returns the viewport's current SampledProfile immediately (nil if
// none has ever completed) and schedules/continues a cancellable
// computation on the worker. A new request cancels any coverage job
// already in flight for this viewport, but never an in-flight read fetch.
func (sf *SampleFile) RequestSampledCoverage(chrom string, start, end, numSamples int, vp Viewport) *coverage.SampledProfile {
	vs := sf.stateFor(vp)
	vs.mu.Lock()
	if vs.coverageCancel != nil {
		vs.coverageCancel()
	}
	jobCtx, cancel := context.WithCancel(sf.ctx)
	vs.coverageGen++
	myGen := vs.coverageGen
	vs.coverageCancel = cancel
	engine := vs.coverageEngine
	vs.mu.Unlock()

	sf.submit(func(context.Context) {
		_, _ = engine.Compute(jobCtx, sf.reader, chrom, start, end, numSamples, func(*coverage.SampledProfile) {
			if sf.appCtx != nil {
				sf.appCtx.Redraw()
			}
		})
		vs.mu.Lock()
		if vs.coverageGen == myGen {
			vs.coverageCancel = nil
		}
		vs.mu.Unlock()
		if sf.appCtx != nil {
			sf.appCtx.Redraw()
		}
	})

	return engine.Current()
}

// GetCoverageProfile returns the viewport's CoverageCache entry for
// [start,end) at canvasWidth resolution, rebuilding from the viewport's
// currently cached reads on a miss (spec §4.10). The read-list version
// tracks StackCache.reads, not slice identity, per Design Notes §9.
func (sf *SampleFile) GetCoverageProfile(chrom string, start, end, canvasWidth int, vp Viewport) *coverage.Profile {
	vs := sf.stateFor(vp)
	vs.mu.Lock()
	reads := vs.reads
	version := vs.version
	cache := vs.coverageCache
	vs.mu.Unlock()
	return cache.Ensure(chrom, start, end, canvasWidth, version, reads)
}
