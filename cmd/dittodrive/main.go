package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/config"
	"github.com/marmos91/dittodrive/pkg/drive"
	"github.com/marmos91/dittodrive/pkg/importer"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"golang.org/x/sync/errgroup"
)

const usage = `DittoDrive - personal drive namespace over an append-only blob store

Usage:
  dittodrive [-config path] <command> [flags] [args]

Commands:
  init [-force]             Write a default config file
  serve                     Open the drive and serve /metrics and /healthz
  ls [path]                 List a folder (default: current folder)
  tree                      Print the folder outline
  mkdir <parent> <name>     Create a folder
  search [-substring] <q>   Search file and folder names
  mv <src> <dst>            Move a node into a folder
  cp <src> <dst>            Copy a node into a folder
  rename <path> <name>      Rename a node
  trash <path>              Move a node to the trash
  restore <path>            Restore a node from the trash
  rm <path>                 Delete a node permanently
  cd <path>                 Set the current folder
  stats                     Print namespace counters
  import [flags]            Import a message range into a folder

Paths are id paths as printed by ls and tree ("/" is the root).
`

func main() {
	global := flag.NewFlagSet("dittodrive", flag.ExitOnError)
	configPath := global.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittodrive/config.yaml)")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	if cmd == "init" {
		if err := runInit(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Configure(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, cmd, args)
	stop()

	if err != nil {
		logger.Error("%s failed: %v", cmd, err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

// app bundles the components every command shares.
type app struct {
	cfg     *config.Config
	metrics *config.MetricsResult
	drive   *drive.Service
}

func open(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// The server starts only after the drive is open
	a.metrics = config.InitializeMetrics(cfg, func(ctx context.Context) error {
		return a.drive.Healthcheck(ctx)
	})

	st, err := config.CreateStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	opts, err := config.DriveOptions(cfg, a.metrics)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.drive, err = drive.Open(ctx, st, opts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return a, nil
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	a, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.drive.Close(); err != nil {
			logger.Warn("Failed to close drive: %v", err)
		}
	}()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "ls":
		return a.ls(ctx, args)
	case "tree":
		printTree(a.drive.FolderTree(ctx), 0)
		return nil
	case "mkdir":
		return a.mkdir(ctx, args)
	case "search":
		return a.search(ctx, args)
	case "mv", "cp":
		return a.transfer(ctx, cmd, args)
	case "rename":
		return a.rename(ctx, args)
	case "trash", "restore", "rm":
		return a.remove(ctx, cmd, args)
	case "cd":
		return a.cd(ctx, args)
	case "stats":
		s := a.drive.Stats(ctx)
		fmt.Printf("folders=%d files=%d trashed=%d bytes=%d external=%d\n",
			s.Folders, s.Files, s.Trashed, s.TotalBytes, s.External)
		return nil
	case "import":
		return a.importRange(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (run without arguments for usage)", cmd)
	}
}

func (a *app) serve(ctx context.Context) error {
	cur, err := a.drive.EnsureCurrentFolder(ctx, a.cfg.Namespace.DefaultFolder)
	if err != nil {
		return err
	}
	logger.Info("Drive ready: store=%s current=%q (%s)", a.cfg.Store.Type, cur.Name, cur.Path)

	g, gctx := errgroup.WithContext(ctx)
	if a.metrics.Server != nil {
		g.Go(func() error { return a.metrics.Server.Start(gctx) })
	} else {
		logger.Info("Metrics disabled; waiting for shutdown signal")
	}

	<-gctx.Done()
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(a.cfg.Server.ShutdownTimeout):
		return errors.New("shutdown timeout exceeded")
	}
}

// parsePath accepts "/" and "" for the root.
func parsePath(s string) (namespace.Path, error) {
	if s == "" || s == "/" {
		return namespace.RootPath, nil
	}
	return namespace.ParsePath(s)
}

func needArgs(args []string, n int, form string) error {
	if len(args) != n {
		return fmt.Errorf("usage: dittodrive %s", form)
	}
	return nil
}

func (a *app) ls(ctx context.Context, args []string) error {
	var p namespace.Path
	switch len(args) {
	case 0:
		cur, err := a.drive.EnsureCurrentFolder(ctx, a.cfg.Namespace.DefaultFolder)
		if err != nil {
			return err
		}
		p = cur.Path
	case 1:
		var err error
		if p, err = parsePath(args[0]); err != nil {
			return err
		}
	default:
		return needArgs(args, 1, "ls [path]")
	}

	dir, err := a.drive.GetDirectory(ctx, p)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", dir.Folder.Name, dir.Path)
	for _, f := range dir.Folders() {
		fmt.Printf("  [dir]  %-40s %s\n", f.Name, dir.Path.Child(f.ID))
	}
	for _, f := range dir.Files() {
		fmt.Printf("  [file] %-40s %s  %d bytes\n", f.Name, dir.Path.Child(f.ID), f.Size)
	}
	return nil
}

func printTree(e *namespace.FolderEntry, depth int) {
	if e == nil {
		return
	}
	fmt.Printf("%s%s  %s\n", strings.Repeat("  ", depth), e.Folder.Name, e.Path)
	for _, c := range e.Children {
		printTree(c, depth+1)
	}
}

func (a *app) mkdir(ctx context.Context, args []string) error {
	if err := needArgs(args, 2, "mkdir <parent> <name>"); err != nil {
		return err
	}
	parent, err := parsePath(args[0])
	if err != nil {
		return err
	}
	p, err := a.drive.NewFolder(ctx, parent, args[1])
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	substring := fs.Bool("substring", false, "Match names containing the query")
	_ = fs.Parse(args)
	if err := needArgs(fs.Args(), 1, "search [-substring] <query>"); err != nil {
		return err
	}

	mode := namespace.MatchExact
	if *substring {
		mode = namespace.MatchSubstring
	}

	results := a.drive.Search(ctx, fs.Arg(0), mode)
	sort.Slice(results, func(i, j int) bool { return results[i].Path.String() < results[j].Path.String() })
	for _, r := range results {
		fmt.Printf("%-6s %-40s %s\n", r.Node.Kind(), r.Node.Info().Name, r.Path)
	}
	return nil
}

func (a *app) transfer(ctx context.Context, cmd string, args []string) error {
	if err := needArgs(args, 2, cmd+" <src> <dst>"); err != nil {
		return err
	}
	src, err := parsePath(args[0])
	if err != nil {
		return err
	}
	dst, err := parsePath(args[1])
	if err != nil {
		return err
	}

	var p namespace.Path
	if cmd == "mv" {
		p, err = a.drive.Move(ctx, src, dst)
	} else {
		p, err = a.drive.Copy(ctx, src, dst)
	}
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

func (a *app) rename(ctx context.Context, args []string) error {
	if err := needArgs(args, 2, "rename <path> <name>"); err != nil {
		return err
	}
	p, err := parsePath(args[0])
	if err != nil {
		return err
	}
	_, err = a.drive.Rename(ctx, p, args[1])
	return err
}

func (a *app) remove(ctx context.Context, cmd string, args []string) error {
	if err := needArgs(args, 1, cmd+" <path>"); err != nil {
		return err
	}
	p, err := parsePath(args[0])
	if err != nil {
		return err
	}

	switch cmd {
	case "trash":
		return a.drive.Trash(ctx, p)
	case "restore":
		return a.drive.Restore(ctx, p)
	}

	n, err := a.drive.Delete(ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d nodes\n", n)
	return nil
}

func (a *app) cd(ctx context.Context, args []string) error {
	if err := needArgs(args, 1, "cd <path>"); err != nil {
		return err
	}
	p, err := parsePath(args[0])
	if err != nil {
		return err
	}
	cur, err := a.drive.SetCurrentFolder(ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s\n", cur.Name, cur.Path)
	return nil
}

func (a *app) importRange(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	channel := fs.String("channel", "", "Source channel id")
	start := fs.Int64("start", 0, "First message id")
	end := fs.Int64("end", 0, "Last message id (inclusive)")
	dest := fs.String("dest", "", "Destination folder path (default: current folder)")
	modeName := fs.String("mode", "bulk", "bulk copies content into storage, fast references it in place")
	_ = fs.Parse(args)

	mode, err := importer.ParseMode(*modeName)
	if err != nil {
		return err
	}

	var destPath namespace.Path
	if *dest == "" {
		cur, err := a.drive.EnsureCurrentFolder(ctx, a.cfg.Namespace.DefaultFolder)
		if err != nil {
			return err
		}
		destPath = cur.Path
	} else if destPath, err = parsePath(*dest); err != nil {
		return err
	}

	b, err := config.CreateBlob(ctx, &a.cfg.Blob, a.metrics.S3)
	if err != nil {
		return err
	}

	opts := config.ImporterOptions(a.cfg, a.metrics)
	opts.Progress = func(done, total int, last importer.Outcome) {
		if done%100 == 0 || done == total {
			logger.Info("Import progress: %d/%d", done, total)
		}
	}

	report, err := importer.New(a.drive, b, b, opts).Run(ctx, importer.Request{
		Channel: *channel,
		Start:   *start,
		End:     *end,
		Dest:    destPath,
		Mode:    mode,
	})
	if err != nil {
		return err
	}

	fmt.Printf("job %s: imported=%d skipped=%d errors=%d cancelled=%t in %s\n",
		report.JobID, report.Imported, report.Skipped, report.Errors, report.Cancelled,
		report.Finished.Sub(report.Started).Round(time.Millisecond))
	for _, f := range report.Failures() {
		fmt.Printf("  message %d: %v\n", f.MessageID, f.Err)
	}
	return nil
}
