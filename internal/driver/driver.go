// Package driver runs the checking pipeline over a file set and keeps the
// latest complete result as an immutable snapshot. Edits are checked either
// by a full run or, when no changed file can affect the symbol table, by
// re-running inference on the changed files against the previous table.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/infer"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/pipeline"
	"github.com/funvibe/sigcheck/internal/resolver"
	"github.com/funvibe/sigcheck/internal/symbols"
)

// ErrSuperseded is returned by Submit when a newer submission replaced the
// run before it could publish.
var ErrSuperseded = errors.New("driver: run superseded by a newer edit")

// Snapshot is the complete result of one run. Its global state is frozen
// and safe for concurrent readers.
type Snapshot struct {
	RunID       string
	Epoch       uint64
	GlobalState *symbols.GlobalState
	Diagnostics []*diagnostics.DiagnosticError
	// InternalErrors are checker bugs; they are never part of Diagnostics.
	InternalErrors []error
	FastPath       bool
	Duration       time.Duration
}

// Program returns the checked tree of a file, or nil.
func (s *Snapshot) Program(path string) *ast.Program {
	if fs := s.GlobalState.File(path); fs != nil {
		return fs.Program
	}
	return nil
}

// Programs returns every file of the snapshot in path order.
func (s *Snapshot) Programs() []*ast.Program {
	var out []*ast.Program
	for _, p := range s.GlobalState.FilePaths() {
		out = append(out, s.GlobalState.File(p).Program)
	}
	return out
}

// Driver owns the run lifecycle.
type Driver struct {
	conf   *config.Config
	logger *log.Logger

	latest atomic.Pointer[Snapshot]

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
	// pending holds submitted file versions the latest snapshot does not
	// reflect yet, so a superseded run's edits are carried forward.
	pending map[string]*ast.Program

	// testHookSubmit, if set, runs after a submission took its epoch and
	// before its run starts.
	testHookSubmit func(ctx context.Context, epoch uint64)
}

// New returns a driver. A nil logger discards log output.
func New(conf *config.Config, logger *log.Logger) *Driver {
	if conf == nil {
		conf = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Driver{conf: conf, logger: logger, pending: make(map[string]*ast.Program)}
}

// Latest returns the last published snapshot, or nil before the first.
func (d *Driver) Latest() *Snapshot {
	return d.latest.Load()
}

// FullRun checks files from scratch on a fresh copy of the prelude.
func (d *Driver) FullRun(ctx context.Context, files []*ast.Program) (*Snapshot, error) {
	start := time.Now()
	runID := uuid.NewString()
	d.logger.Printf("run %s: full run over %d file(s)", runID, len(files))

	pctx := pipeline.NewPipelineContext(ctx, symbols.GetPrelude().DeepCopy(), d.conf)
	pctx.RunID = runID
	pctx.Programs = files
	pctx = pipeline.New(
		&namer.NamerProcessor{},
		&resolver.ResolverProcessor{},
		&infer.InferProcessor{},
	).Run(pctx)
	return d.finish(pctx, false, start)
}

// IncrementalRun checks the changed files against prev. The fast path is
// taken only when every changed file is already known with the same sigil
// and the same definition hash, and the edit is small; anything else falls
// back to a full run over prev's files with the changes applied.
func (d *Driver) IncrementalRun(ctx context.Context, changed []*ast.Program, prev *Snapshot) (*Snapshot, error) {
	if prev == nil {
		return d.FullRun(ctx, changed)
	}
	start := time.Now()
	runID := uuid.NewString()

	methods, reason := d.fastPath(changed, prev.GlobalState)
	if reason != "" {
		d.logger.Printf("run %s: slow path: %s", runID, reason)
		return d.FullRun(ctx, merge(prev, changed))
	}
	d.logger.Printf("run %s: fast path for %d file(s)", runID, len(changed))

	gs := prev.GlobalState.ShallowCopy()
	paths := make([]string, 0, len(changed))
	for _, prog := range changed {
		gs.SetFileProgram(prog.File, prog, methods[prog.File])
		paths = append(paths, prog.File)
	}
	sort.Strings(paths)

	pctx := pipeline.NewPipelineContext(ctx, gs, d.conf)
	pctx.RunID = runID
	pctx.CheckPaths = paths
	pctx = pipeline.New(&infer.InferProcessor{}).Run(pctx)
	return d.finish(pctx, true, start)
}

// fastPath returns the rebound method tables of the changed files, or the
// reason the fast path cannot be taken.
func (d *Driver) fastPath(changed []*ast.Program, prev *symbols.GlobalState) (map[string][]symbols.MethodDef, string) {
	if len(changed) > d.conf.FastPathMaxFiles {
		return nil, fmt.Sprintf("%d changed files exceed the limit of %d", len(changed), d.conf.FastPathMaxFiles)
	}
	seen := set.New[string](len(changed))
	methods := make(map[string][]symbols.MethodDef, len(changed))
	for _, prog := range changed {
		if !seen.Insert(prog.File) {
			return nil, fmt.Sprintf("%s changed twice", prog.File)
		}
		fs := prev.File(prog.File)
		switch {
		case fs == nil:
			return nil, fmt.Sprintf("%s is new", prog.File)
		case fs.Sigil != prog.Sigil:
			return nil, fmt.Sprintf("%s changed its sigil", prog.File)
		case fs.Hash != namer.DefinitionHash(prog):
			return nil, fmt.Sprintf("%s changed its definitions", prog.File)
		}
		ms, ok := namer.BindMethods(fs, prog)
		if !ok {
			return nil, fmt.Sprintf("%s methods do not line up", prog.File)
		}
		methods[prog.File] = ms
	}
	return methods, ""
}

// merge returns prev's files with the changed versions substituted.
func merge(prev *Snapshot, changed []*ast.Program) []*ast.Program {
	byPath := make(map[string]*ast.Program)
	for _, prog := range prev.Programs() {
		byPath[prog.File] = prog
	}
	for _, prog := range changed {
		byPath[prog.File] = prog
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]*ast.Program, len(paths))
	for i, p := range paths {
		out[i] = byPath[p]
	}
	return out
}

func (d *Driver) finish(pctx *pipeline.PipelineContext, fast bool, start time.Time) (*Snapshot, error) {
	if pctx.Err != nil {
		d.logger.Printf("run %s: failed: %v", pctx.RunID, pctx.Err)
		return nil, fmt.Errorf("run %s: %w", pctx.RunID, pctx.Err)
	}
	gs := pctx.GlobalState
	gs.Freeze()
	snap := &Snapshot{
		RunID:          pctx.RunID,
		GlobalState:    gs,
		Diagnostics:    pctx.Diagnostics(),
		InternalErrors: gs.InternalErrors(),
		FastPath:       fast,
		Duration:       time.Since(start),
	}
	for _, ie := range snap.InternalErrors {
		d.logger.Printf("run %s: INTERNAL ERROR: %v", snap.RunID, ie)
	}
	d.logger.Printf("run %s: %d diagnostic(s) in %s", snap.RunID, len(snap.Diagnostics), snap.Duration)
	return snap, nil
}

// Submit checks an edit and publishes the result. A newer Submit cancels
// this one; a run that lost the race returns ErrSuperseded and publishes
// nothing, and its edits are carried into the newer run.
func (d *Driver) Submit(ctx context.Context, changed []*ast.Program) (*Snapshot, error) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.logger.Printf("superseding run at epoch %d", d.epoch)
	}
	d.epoch++
	epoch := d.epoch
	for _, prog := range changed {
		d.pending[prog.File] = prog
	}
	edit := make([]*ast.Program, 0, len(d.pending))
	for _, prog := range d.pending {
		edit = append(edit, prog)
	}
	sort.Slice(edit, func(i, j int) bool { return edit[i].File < edit[j].File })
	rctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	if d.testHookSubmit != nil {
		d.testHookSubmit(rctx, epoch)
	}
	snap, err := d.IncrementalRun(rctx, edit, d.Latest())

	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.epoch {
		return nil, ErrSuperseded
	}
	d.cancel = nil
	if err != nil {
		return nil, err
	}
	snap.Epoch = epoch
	for _, prog := range edit {
		if d.pending[prog.File] == prog {
			delete(d.pending, prog.File)
		}
	}
	d.latest.Store(snap)
	return snap, nil
}
