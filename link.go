package cppl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/kaomoneus/cppl/internal/childproc"
	"github.com/kaomoneus/cppl/internal/graph"
	"github.com/kaomoneus/cppl/internal/unitpath"
)

// phaseLinkOrFinish implements spec §4.10 step 6: if link is enabled,
// require that an object was rebuilt this run or the output executable is
// missing, gather every project unit's object path, and invoke the
// linker. If link is disabled, the headers/surrogates phase 5 already
// wrote constitute the library output, so there is nothing left to do.
func (c *Coordinator) phaseLinkOrFinish(ctx context.Context, g *graph.Graph) error {
	if c.Options.LinkDisabled {
		return nil
	}

	if _, err := os.Stat(c.Options.Output); err == nil && !c.tracker.ObjectsUpdated() {
		c.Log.Debug("link skipped: output exists and no object changed")
		return nil
	}

	layout := c.layout()

	c.unitsMu.Lock()
	units := make([]unitRecord, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	c.unitsMu.Unlock()
	sort.Slice(units, func(i, j int) bool { return units[i].id < units[j].id })

	var objects []string
	for _, u := range units {
		if !u.isProjectUnit {
			continue
		}
		objects = append(objects, layout.ArtifactPath(u.relPath, unitpath.Object, false))
	}

	argv := childproc.LinkArgv(objects, c.Options.Output, c.Options.ExtraArgsLink)

	if c.Options.DryRun {
		c.Log.Info("dry run: link", zap.Strings("argv", argv))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.Options.Output), 0o755); err != nil {
		return err
	}

	res, err := childproc.Run(ctx, c.Options.Linker, argv)
	if err != nil {
		return fmt.Errorf("starting linker: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("link failed: %s", res.Stderr)
	}
	if len(res.Stderr) > 0 {
		c.status.Warn(fmt.Sprintf("link: %s", res.Stderr))
	}
	return nil
}
