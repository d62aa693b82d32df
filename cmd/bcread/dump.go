package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bcread/internal/bccache"
	"bcread/internal/bcread"
	"bcread/internal/ir"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] file.bc...",
	Short: "Print a summary of each bitcode module",
	Long:  `Dump parses each input and prints its triple, globals, and functions`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().Bool("bodies", false, "materialize function bodies and count instructions")
	dumpCmd.Flags().String("cache-dir", "", "directory for the sidecar offset index")
}

// moduleSummary is the per-file result handed back from the parse workers.
type moduleSummary struct {
	path      string
	triple    string
	layout    string
	globals   int
	aliases   int
	decls     int
	defs      int
	instrs    int
	withBodies bool
}

func runDump(cmd *cobra.Command, args []string) error {
	bodies, err := cmd.Flags().GetBool("bodies")
	if err != nil {
		return fmt.Errorf("failed to get bodies flag: %w", err)
	}
	cacheDir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return fmt.Errorf("failed to get cache-dir flag: %w", err)
	}

	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	if !bodies {
		bodies = cfg.Dump.Materialize
	}
	if cacheDir == "" {
		cacheDir = cfg.Dump.CacheDir
	}

	var cache *bccache.Cache
	if cacheDir != "" {
		cache, err = bccache.OpenAt(cacheDir)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
	}

	// Each file gets its own context and reader; streams never share one.
	var mu sync.Mutex
	summaries := make(map[string]*moduleSummary, len(args))

	var g errgroup.Group
	for _, path := range args {
		path := path
		g.Go(func() error {
			summary, err := dumpOne(path, bodies, cache)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			summaries[path] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	colorFlag, _ := cmd.Root().PersistentFlags().GetString("color")
	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))
	for _, path := range args {
		printSummary(summaries[path], useColor)
	}
	return nil
}

func dumpOne(path string, bodies bool, cache *bccache.Cache) (*moduleSummary, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ctx := ir.NewContext()
	m, err := bcread.Lazy(ctx, buf, path)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if reader, ok := m.Materializer.(*bcread.Reader); ok {
			idx := &bccache.Index{Triple: m.Triple, FuncOffsets: reader.DeferredOffsets()}
			if err := cache.Put(bccache.DigestOf(buf), idx); err != nil {
				return nil, fmt.Errorf("failed to write offset index: %w", err)
			}
		}
	}

	summary := &moduleSummary{
		path:    path,
		triple:  m.Triple,
		layout:  m.DataLayout,
		globals: len(m.Globals),
		aliases: len(m.Aliases),
	}

	if bodies {
		if err := m.MaterializeAll(); err != nil {
			return nil, err
		}
		summary.withBodies = true
	}
	for _, fn := range m.Funcs {
		// A deferred body still counts as a definition.
		if fn.IsDeclaration() && !(m.Materializer != nil && m.Materializer.IsMaterializable(fn)) {
			summary.decls++
			continue
		}
		summary.defs++
		for _, bb := range fn.Blocks {
			summary.instrs += len(bb.Instrs)
		}
	}
	return summary, nil
}

func printSummary(s *moduleSummary, useColor bool) {
	header := color.New(color.FgCyan, color.Bold)
	if !useColor {
		header.DisableColor()
	}
	header.Printf("%s\n", s.path)
	if s.triple != "" {
		fmt.Printf("  triple      %s\n", s.triple)
	}
	if s.layout != "" {
		fmt.Printf("  datalayout  %s\n", s.layout)
	}
	fmt.Printf("  globals     %d\n", s.globals)
	if s.aliases > 0 {
		fmt.Printf("  aliases     %d\n", s.aliases)
	}
	fmt.Printf("  functions   %d defined, %d declared\n", s.defs, s.decls)
	if s.withBodies {
		fmt.Printf("  instrs      %d\n", s.instrs)
	}
}
