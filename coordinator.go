package cppl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kaomoneus/cppl/internal/chash"
	"github.com/kaomoneus/cppl/internal/childproc"
	"github.com/kaomoneus/cppl/internal/depfile"
	"github.com/kaomoneus/cppl/internal/graph"
	"github.com/kaomoneus/cppl/internal/headergen"
	"github.com/kaomoneus/cppl/internal/incremental"
	"github.com/kaomoneus/cppl/internal/metafile"
	"github.com/kaomoneus/cppl/internal/pool"
	"github.com/kaomoneus/cppl/internal/solve"
	"github.com/kaomoneus/cppl/internal/task"
	"github.com/kaomoneus/cppl/internal/unitpath"
	"github.com/kaomoneus/cppl/reporter"
)

// unitRecord is everything the coordinator remembers about a unit once
// collected: its identifier, its source path, its root-relative path (used
// to derive every artifact path), which root it was discovered under, and
// whether that root was the project root or a library root.
type unitRecord struct {
	id            string
	sourcePath    string
	relPath       string
	root          string
	isProjectUnit bool
}

// Coordinator runs one build: collect, preamble, parse-imports, solve,
// codegen, link, in that order, short-circuiting on the first phase that
// records a failure (spec §4.10).
type Coordinator struct {
	Options Options
	Log     *zap.Logger
	Hooks   CoordinatorHooks

	status  *Status
	handler *reporter.Handler
	pool    *pool.Pool
	tasks   *task.Manager
	tracker *incremental.Tracker
	solver  *solve.Solver

	unitsMu sync.Mutex
	units   map[string]unitRecord
}

// NewCoordinator builds a Coordinator ready to Run. A nil log gets a no-op
// logger; hooks are optional (its zero value runs every phase silently).
func NewCoordinator(opts Options, log *zap.Logger, hooks CoordinatorHooks) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	status := NewStatus()
	rep := reporter.NewReporter(
		func(err reporter.ErrorWithPos) error {
			log.Error("build error",
				zap.String("pos", err.GetPosition().String()),
				zap.Error(err))
			return err
		},
		func(err reporter.ErrorWithPos) {
			status.Warn(err.Error())
			log.Warn("build warning",
				zap.String("pos", err.GetPosition().String()),
				zap.Error(err))
		},
	)
	return &Coordinator{
		Options: opts,
		Log:     log,
		Hooks:   hooks,
		status:  status,
		handler: reporter.NewHandler(rep),
		pool:    pool.New(),
		tasks:   task.New(log, opts.Jobs),
		tracker: incremental.NewTracker(),
		units:   make(map[string]unitRecord),
	}
}

// Status returns the run's shared failure/warning state.
func (c *Coordinator) Status() *Status { return c.status }

func (c *Coordinator) layout() unitpath.Layout {
	return unitpath.Layout{
		ProjectRoot: c.Options.ProjectRoot,
		BuildRoot:   c.Options.BuildRoot,
		LibsSubdir:  "libs",
		SourceExt:   unitpath.DefaultSourceExt,
	}
}

// Run executes every phase in order and returns the process exit code
// (spec §6: 0 success, 1 argument error, 2 build failure).
func (c *Coordinator) Run(ctx context.Context) int {
	if err := c.Options.Validate(); err != nil {
		c.Log.Error("argument error", zap.Error(err))
		return 1
	}

	if err := os.MkdirAll(c.Options.BuildRoot, 0o755); err != nil {
		c.Log.Error("creating build root", zap.Error(goerrors.Wrap(err, 1)))
		return 2
	}

	fl := flock.New(filepath.Join(c.Options.BuildRoot, ".cppl-lock"))
	locked, err := fl.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil || !locked {
		c.Log.Error("build root is locked by another run", zap.String("buildRoot", c.Options.BuildRoot))
		return 2
	}
	defer fl.Unlock() //nolint:errcheck // best-effort: the process is exiting regardless

	if !c.runPhase("collect", c.phaseCollect) {
		return c.finish(nil)
	}
	if !c.runPhase("preamble", func() error { return c.phasePreamble(ctx) }) {
		return c.finish(nil)
	}

	var imports map[string]depfile.ParsedImports
	if !c.runPhase("parse-imports", func() error {
		var err error
		imports, err = c.phaseParseImports(ctx)
		return err
	}) {
		return c.finish(nil)
	}

	var g *graph.Graph
	if !c.runPhase("solve", func() error {
		var err error
		g, err = graph.Build(c.pool, imports)
		if err == nil {
			c.solver = solve.New(g)
		}
		return err
	}) {
		return c.finish(g)
	}

	if !c.runPhase("codegen", func() error { return c.phaseCodegen(ctx, g) }) {
		return c.finish(g)
	}

	c.runPhase("link", func() error { return c.phaseLinkOrFinish(ctx, g) })
	return c.finish(g)
}

// runPhase short-circuits if a previous phase already failed, otherwise
// runs fn, wrapping any error with a stack trace and recording it on
// Status. Returns whether the phase succeeded.
func (c *Coordinator) runPhase(name string, fn func() error) bool {
	if c.status.Failed() {
		return false
	}
	if c.Hooks.PrePhase != nil {
		c.Hooks.PrePhase(name)
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		c.status.Fail(goerrors.Wrap(err, 1))
		c.Log.Error("phase failed", zap.String("phase", name), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		c.Log.Debug("phase finished", zap.String("phase", name), zap.Duration("elapsed", elapsed))
	}
	if c.Hooks.PostPhase != nil {
		c.Hooks.PostPhase(name, err)
	}
	return err == nil
}

// finish flushes the run's warning summary (spec §7) and returns the final
// exit code, emitting the "Nothing to build." notice (P1) when codegen ran
// but touched no object.
func (c *Coordinator) finish(g *graph.Graph) int {
	for _, w := range c.status.Warnings() {
		c.Log.Warn(w)
	}
	if c.status.Failed() {
		return 2
	}
	if g != nil && !c.tracker.ObjectsUpdated() {
		c.Log.Info("Nothing to build.")
	}
	return 0
}

// phaseCollect walks the project root and every configured library root,
// registering one unit per source file found (spec §4.10 step 1).
func (c *Coordinator) phaseCollect() error {
	layout := c.layout()
	var g errgroup.Group
	g.Go(func() error { return c.collectRoot(layout, c.Options.ProjectRoot, true) })
	for _, lr := range c.Options.LibRoots {
		lr := lr
		g.Go(func() error { return c.collectRoot(layout, lr, false) })
	}
	return g.Wait()
}

func (c *Coordinator) collectRoot(layout unitpath.Layout, root string, isProjectUnit bool) error {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	absBuildRoot, err := filepath.Abs(c.Options.BuildRoot)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, aerr := filepath.Abs(path); aerr == nil && abs == absBuildRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != layout.SourceExt {
			return nil
		}
		relPath, err := unitpath.RelPath(root, path)
		if err != nil {
			return err
		}
		return c.registerUnit(unitRecord{
			id:            layout.Identifier(relPath),
			sourcePath:    path,
			relPath:       relPath,
			root:          root,
			isProjectUnit: isProjectUnit,
		})
	})
}

func (c *Coordinator) registerUnit(u unitRecord) error {
	c.unitsMu.Lock()
	existing, dup := c.units[u.id]
	if !dup {
		c.units[u.id] = u
	}
	c.unitsMu.Unlock()

	if dup {
		return c.handler.HandleError(reporter.Error(
			reporter.Position{UnitID: u.id, Phase: "collect"},
			reporter.DuplicateUnit(u.id, existing.sourcePath),
		))
	}
	return nil
}

func (c *Coordinator) unitFor(id pool.ID) (unitRecord, bool) {
	name := c.pool.String(id)
	c.unitsMu.Lock()
	defer c.unitsMu.Unlock()
	u, ok := c.units[name]
	return u, ok
}

// phasePreamble builds the precompiled preamble if one was requested (spec
// §4.10 step 2), skipping the rebuild when the preamble source's hash
// still matches the recorded one.
func (c *Coordinator) phasePreamble(ctx context.Context) error {
	if c.Options.PreamblePath == "" {
		return nil
	}
	layout := c.layout()
	artifact := layout.PreambleArtifactPath(false)
	metaPath := layout.PreambleArtifactPath(true)

	src, err := os.ReadFile(c.Options.PreamblePath)
	if err != nil {
		return err
	}

	upToDate := false
	if _, err := os.Stat(artifact); err == nil {
		if meta, merr := metafile.Read(metaPath); merr == nil {
			upToDate = meta.SourceHash.Equal(chash.Sum(src))
		}
	}
	if upToDate {
		c.Log.Debug("preamble up to date")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return err
	}

	common := childproc.CommonArgs{
		SrcRoot:   c.Options.ProjectRoot,
		UnitID:    "preamble",
		MetaPath:  metaPath,
		Output:    artifact,
		Includes:  c.Options.Includes,
		ExtraArgs: c.Options.ExtraArgsPreamble,
	}
	argv := childproc.PreambleArgv(common, c.Options.PreamblePath, c.Options.Stdlib)

	if c.Options.DryRun {
		c.Log.Info("dry run: preamble", zap.Strings("argv", argv))
		c.tracker.SetPreambleUpdated()
		return nil
	}

	res, err := childproc.Run(ctx, c.Options.FrontEnd, argv)
	if err != nil {
		return fmt.Errorf("preamble: starting front end: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("preamble build failed: %s", res.Stderr)
	}
	if len(res.Stderr) > 0 {
		c.status.Warn(fmt.Sprintf("preamble: %s", res.Stderr))
	}
	c.tracker.SetPreambleUpdated()
	return nil
}

// phaseParseImports invokes the front end in parse-imports mode for every
// unit whose record is stale, in parallel (spec §4.10 step 3).
func (c *Coordinator) phaseParseImports(ctx context.Context) (map[string]depfile.ParsedImports, error) {
	c.unitsMu.Lock()
	units := make([]unitRecord, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	c.unitsMu.Unlock()

	layout := c.layout()
	result := make(map[string]depfile.ParsedImports, len(units))
	var resultMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		u := u
		g.Go(func() error {
			rec, err := c.parseImportsOne(gctx, layout, u)
			if err != nil {
				return fmt.Errorf("parse-imports %s: %w", u.id, err)
			}
			resultMu.Lock()
			result[u.id] = rec
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) parseImportsOne(ctx context.Context, layout unitpath.Layout, u unitRecord) (depfile.ParsedImports, error) {
	ldepsPath := layout.ArtifactPath(u.relPath, unitpath.ParsedDeps, !u.isProjectUnit)
	metaPath := layout.ArtifactPath(u.relPath, unitpath.ParsedDepsMeta, !u.isProjectUnit)

	src, err := os.ReadFile(u.sourcePath)
	if err != nil {
		return depfile.ParsedImports{}, err
	}

	stale := true
	if meta, merr := metafile.Read(metaPath); merr == nil {
		stale = !meta.SourceHash.Equal(chash.Sum(src))
	}

	if stale {
		if c.Options.DryRun {
			common := childproc.CommonArgs{
				SrcRoot:   u.root,
				UnitID:    u.id,
				MetaPath:  metaPath,
				Output:    ldepsPath,
				Includes:  c.Options.Includes,
				ExtraArgs: c.Options.ExtraArgsParse,
			}
			argv := childproc.ImportArgv(common, u.sourcePath)
			c.Log.Info("dry run: parse-imports", zap.String("unit", u.id), zap.Strings("argv", argv))
			return depfile.ParsedImports{UnitID: u.id, IsExternal: !u.isProjectUnit}, nil
		}

		if err := os.MkdirAll(filepath.Dir(ldepsPath), 0o755); err != nil {
			return depfile.ParsedImports{}, err
		}
		common := childproc.CommonArgs{
			SrcRoot:   u.root,
			UnitID:    u.id,
			MetaPath:  metaPath,
			Output:    ldepsPath,
			Includes:  c.Options.Includes,
			ExtraArgs: c.Options.ExtraArgsParse,
		}
		argv := childproc.ImportArgv(common, u.sourcePath)

		res, err := childproc.Run(ctx, c.Options.FrontEnd, argv)
		if err != nil {
			return depfile.ParsedImports{}, fmt.Errorf("starting front end: %w", err)
		}
		if res.ExitCode != 0 {
			return depfile.ParsedImports{}, fmt.Errorf("%s", res.Stderr)
		}
		if len(res.Stderr) > 0 {
			c.status.Warn(fmt.Sprintf("%s: %s", u.id, res.Stderr))
		}
	} else if c.Options.DryRun {
		return depfile.ParsedImports{UnitID: u.id, IsExternal: !u.isProjectUnit}, nil
	}

	rec, err := depfile.Read(ldepsPath)
	if err != nil {
		return depfile.ParsedImports{}, fmt.Errorf("reading parsed-imports record: %w", err)
	}
	// The collect phase's own project/library-root classification is
	// authoritative for externality, since it is derived from which root
	// the source file was discovered under rather than from anything the
	// front end can itself observe. is_public, by contrast, is trusted as
	// reported by the front end, since only it can read the source's
	// public annotation.
	rec.IsExternal = !u.isProjectUnit
	return rec, nil
}

// phaseCodegen runs the dsf_jobs walk over the graph, invoking
// processNode on every node (spec §4.10 step 5).
func (c *Coordinator) phaseCodegen(ctx context.Context, g *graph.Graph) error {
	w := solve.NewWalker(g, c.tasks, func(ctx context.Context, n *graph.Node) bool {
		return c.processNode(ctx, g, n)
	})
	if !w.Run(ctx) {
		return reporter.ErrInvalidSource
	}
	return nil
}

func (c *Coordinator) processNode(ctx context.Context, g *graph.Graph, n *graph.Node) bool {
	u, ok := c.unitFor(n.Unit)
	if !ok {
		c.status.Fail(fmt.Errorf("internal error: node %d has no registered unit", n.ID()))
		return false
	}
	layout := c.layout()

	var artifact, metaPath string
	if n.Kind == graph.Definition {
		artifact = layout.ArtifactPath(u.relPath, unitpath.Object, n.External)
		metaPath = layout.ArtifactPath(u.relPath, unitpath.ObjectMeta, n.External)
	} else {
		artifact = layout.ArtifactPath(u.relPath, unitpath.DeclAST, n.External)
		metaPath = layout.ArtifactPath(u.relPath, unitpath.DeclASTMeta, n.External)
	}

	if incremental.CheckUpToDate(g, n, u.sourcePath, artifact, metaPath, c.tracker) {
		return true
	}

	prevHash, hadPrev := incremental.PreviousArtifactHash(metaPath)

	if !c.Options.DryRun {
		if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
			c.status.Fail(err)
			return false
		}
	}

	deps := c.solver.TransitiveDeps(n)
	depArtifacts := make([]string, 0, len(deps))
	for _, d := range deps {
		if d.Kind != graph.Declaration {
			continue
		}
		du, ok := c.unitFor(d.Unit)
		if !ok {
			continue
		}
		depArtifacts = append(depArtifacts, layout.ArtifactPath(du.relPath, unitpath.DeclAST, d.External))
	}

	preamble := ""
	if c.Options.PreamblePath != "" {
		preamble = layout.PreambleArtifactPath(false)
	}

	common := childproc.CommonArgs{
		SrcRoot:   u.root,
		UnitID:    u.id,
		MetaPath:  metaPath,
		Output:    artifact,
		Includes:  c.Options.Includes,
		ExtraArgs: c.Options.ExtraArgsCodegen,
	}

	var argv []string
	if n.Kind == graph.Definition {
		argv = childproc.ObjArgv(common, u.sourcePath, c.Options.Stdlib, preamble, depArtifacts)
	} else {
		suppress := hasDefinition(g, n.Unit)
		argv = childproc.DeclArgv(common, u.sourcePath, c.Options.Stdlib, preamble, depArtifacts, suppress)
	}

	if c.Options.DryRun {
		c.Log.Info("dry run: codegen", zap.String("unit", u.id), zap.String("kind", n.Kind.String()), zap.Strings("argv", argv))
		if n.Kind == graph.Definition {
			c.tracker.SetObjectsUpdated()
		}
		return true
	}

	res, err := childproc.Run(ctx, c.Options.FrontEnd, argv)
	if err != nil {
		c.status.Fail(fmt.Errorf("%s: starting front end: %w", u.id, err))
		return false
	}
	if res.ExitCode != 0 {
		c.status.Fail(fmt.Errorf("%s %s failed: %s", u.id, n.Kind, res.Stderr))
		return false
	}
	if len(res.Stderr) > 0 {
		c.status.Warn(fmt.Sprintf("%s: %s", u.id, res.Stderr))
	}

	if n.Kind == graph.Definition {
		c.tracker.SetObjectsUpdated()
		return true
	}

	newMeta, err := metafile.Read(metaPath)
	if err != nil {
		c.status.Fail(fmt.Errorf("%s: reading rebuilt declaration meta: %w", u.id, err))
		return false
	}
	incremental.CascadeOnRebuild(n, hadPrev, prevHash, newMeta.ArtifactHash, c.tracker)

	if n.Public {
		if c.Options.HeaderOutDir != "" {
			if err := c.emitGenerated(g, n, u, newMeta, headergen.HeaderMode); err != nil {
				c.status.Warn(fmt.Sprintf("%s: header generation: %v", u.id, err))
			}
		}
		if !n.External && c.Options.DeclSurrogateOutDir != "" {
			if err := c.emitGenerated(g, n, u, newMeta, headergen.SurrogateMode); err != nil {
				c.status.Warn(fmt.Sprintf("%s: declaration-surrogate generation: %v", u.id, err))
			}
		}
	}
	return true
}

func hasDefinition(g *graph.Graph, unit pool.ID) bool {
	return g.Node(graph.EncodeID(graph.Definition, unit)) != nil
}

func (c *Coordinator) emitGenerated(g *graph.Graph, n *graph.Node, u unitRecord, meta metafile.Meta, mode headergen.Mode) error {
	src, err := os.ReadFile(u.sourcePath)
	if err != nil {
		return err
	}

	var deps []headergen.Dependency
	for _, dep := range g.Dependencies(n) {
		if dep.Kind != graph.Declaration {
			continue
		}
		du, ok := c.unitFor(dep.Unit)
		if !ok {
			continue
		}
		deps = append(deps, headergen.Dependency{UnitID: du.id, RelPath: relPathWithExt(du.relPath, ".h")})
	}

	preambleRel := ""
	if c.Options.PreamblePath != "" {
		preambleRel = filepath.Base(c.Options.PreamblePath)
	}

	out := headergen.GenerateFromMeta(src, meta, mode, deps, preambleRel)

	var outDir, ext string
	if mode == headergen.HeaderMode {
		outDir, ext = c.Options.HeaderOutDir, ".h"
	} else {
		outDir, ext = c.Options.DeclSurrogateOutDir, ".decl"
	}
	outPath := filepath.Join(outDir, relPathWithExt(u.relPath, ext))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, out, 0o644)
}

func relPathWithExt(relPath, ext string) string {
	return relPath[:len(relPath)-len(filepath.Ext(relPath))] + ext
}
