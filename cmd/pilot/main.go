package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nick-dorsch/projectpilot/internal/board"
	"github.com/nick-dorsch/projectpilot/internal/config"
	"github.com/nick-dorsch/projectpilot/internal/db"
	"github.com/nick-dorsch/projectpilot/internal/link"
	"github.com/nick-dorsch/projectpilot/internal/mcp"
	"github.com/nick-dorsch/projectpilot/internal/reminder"
	"github.com/nick-dorsch/projectpilot/internal/server"
	"github.com/nick-dorsch/projectpilot/internal/tui"
	"github.com/nick-dorsch/projectpilot/internal/ui"
)

// Swapped out in tests.
var (
	selectCommand = ui.RunMenu
	runBoardTUI   = tui.Run
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet, w io.Writer) func() {
	return func() {
		fmt.Fprintln(w, "Usage: pilot [flags] <command> [arguments]")
		fmt.Fprintln(w, "\nCommands:")
		fmt.Fprintln(w, "  board     Open the task board (default)")
		fmt.Fprintln(w, "  web       Serve the board as a JSON API")
		fmt.Fprintln(w, "  mcp       Serve board tools over MCP stdio")
		fmt.Fprintln(w, "  remind    Run the reminder loop without a UI")
		fmt.Fprintln(w, "  status    Print a board summary")
		fmt.Fprintln(w, "  suggest   Suggest subtasks for a task")
		fmt.Fprintln(w, "  init      Create .pilot/ with a config file and database")
		fmt.Fprintln(w, "\nRunning `pilot` with no command in a terminal shows a menu.")
		fmt.Fprintln(w, "\nFlags:")
		fs.PrintDefaults()
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pilot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs, stderr)

	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	command := fs.Arg(0)
	var rest []string
	if fs.NArg() > 1 {
		rest = fs.Args()[1:]
	}
	if command == "" {
		selected, err := selectCommand()
		if err != nil {
			return fmt.Errorf("failed to run menu: %w", err)
		}
		if selected == "" {
			return nil
		}
		command = selected
	}

	switch command {
	case "board":
		return runBoard(ctx, cfg, rest, stderr)
	case "web":
		return runWeb(ctx, cfg, rest, stderr)
	case "mcp":
		return runMCP(ctx, cfg, rest)
	case "remind":
		return runRemind(ctx, cfg, rest, stdout, stderr)
	case "status":
		return runStatus(ctx, cfg, rest, stdout, stderr)
	case "suggest":
		return runSuggest(ctx, cfg, rest, stdout, stderr)
	case "init":
		return runInit(ctx, cfg, rest, stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runBoard(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	boardFlags := flag.NewFlagSet("board", flag.ContinueOnError)
	boardFlags.SetOutput(stderr)
	open := boardFlags.String("open", "", "Deep link or task id to open on start")
	if err := boardFlags.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	perm, _, err := a.permissions()
	if err != nil {
		return err
	}
	notifier := reminder.NewChannelNotifier(perm, 8)
	dispatcher := a.dispatcher(notifier)

	startLink := *open
	if startLink != "" && !strings.Contains(startLink, "://") {
		if startLink, err = link.OpenTaskURL(tui.BoardURL, startLink); err != nil {
			return err
		}
	}

	return runBoardTUI(ctx, tui.Options{
		Store:             a.store,
		Runner:            a.runner(),
		Notifier:          notifier,
		Reminders:         dispatcher,
		Clipboard:         link.NewOSC52Clipboard(),
		RearmOnReschedule: cfg.Reminders.RearmOnReschedule,
		ShareOrigin:       cfg.Share.Origin,
		SharePath:         cfg.Share.Path,
		Link:              startLink,
		Logger:            a.logger.WithPrefix("tui"),
	}, dispatcher)
}

func runWeb(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	webFlags := flag.NewFlagSet("web", flag.ContinueOnError)
	webFlags.SetOutput(stderr)
	if err := webFlags.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	perm, onRequest, err := a.permissions()
	if err != nil {
		return err
	}
	notifier := reminder.NewLogNotifier(a.logger.WithPrefix("notify"), perm, onRequest)
	dispatcher := a.dispatcher(notifier)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("reminder dispatcher stopped", "err", err)
		}
	}()

	srv := server.NewServer(server.Options{
		Store:             a.store,
		Runner:            a.runner(),
		Notifier:          notifier,
		Reminders:         dispatcher,
		RearmOnReschedule: cfg.Reminders.RearmOnReschedule,
		ShareOrigin:       cfg.Share.Origin,
		SharePath:         cfg.Share.Path,
		Logger:            a.logger.WithPrefix("web"),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("web server shutdown failed", "err", err)
		}
	}()

	if err := srv.Start(cfg.Web.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runMCP(ctx context.Context, cfg *config.Config, args []string) error {
	// stdout carries the protocol, so logs go to the log file.
	a, err := newApp(ctx, cfg, io.Discard, true)
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcp.NewServer(a.store, mcp.Options{
		Runner:      a.runner(),
		ShareOrigin: cfg.Share.Origin,
		SharePath:   cfg.Share.Path,
	})
	return mcp.Serve(s)
}

func runRemind(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	remindFlags := flag.NewFlagSet("remind", flag.ContinueOnError)
	remindFlags.SetOutput(stderr)
	once := remindFlags.Bool("once", false, "Run a single pass and exit")
	if err := remindFlags.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	perm, onRequest, err := a.permissions()
	if err != nil {
		return err
	}
	notifier := reminder.NewLogNotifier(a.logger.WithPrefix("notify"), perm, onRequest)
	// The seed board already carries a reminder, which counts as the first one set.
	if len(board.TasksWithReminders(a.store.Snapshot())) > 0 {
		if _, err := reminder.RequestIfNeeded(ctx, notifier); err != nil {
			return err
		}
	}
	a.logger.Info("reminders", "permission", notifier.Permission(), "interval", cfg.Reminders.Interval.Duration)

	dispatcher := a.dispatcher(notifier)
	if *once {
		n, err := dispatcher.Tick(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d reminders fired\n", n)
		return nil
	}

	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	a, err := newApp(ctx, cfg, stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.store.Snapshot()
	today := time.Now()

	fmt.Fprintln(stdout, "Project Pilot Status")
	fmt.Fprintln(stdout, "====================")
	fmt.Fprintf(stdout, "Total Tasks:     %d\n", len(p.Tasks))

	overdue := 0
	for _, t := range p.Tasks {
		if board.IsOverdue(p, t, today) {
			overdue++
		}
	}
	fmt.Fprintf(stdout, "Overdue:         %d\n", overdue)

	fmt.Fprintln(stdout, "\nColumns:")
	for _, col := range p.OrderedColumns() {
		fmt.Fprintf(stdout, "  %-14s %d\n", col.Title+":", len(col.TaskIDs))
	}

	fired, err := reminder.LoadFired(ctx, a.slots)
	if err != nil {
		if !errors.Is(err, reminder.ErrCorruptFiredSet) {
			return err
		}
		a.logger.Warn("fired reminders slot is corrupt", "err", err)
	}
	fmt.Fprintf(stdout, "\nFired Reminders: %d\n", len(fired))
	for _, id := range fired {
		title := "(unknown task)"
		if t, ok := p.Tasks[id]; ok {
			title = t.Title
		}
		fmt.Fprintf(stdout, "  - %s %s\n", id, title)
	}

	var pending []string
	for _, t := range board.TasksWithReminders(p) {
		if !slices.Contains(fired, t.ID) {
			pending = append(pending, fmt.Sprintf("%s at %s", t.ID, t.ReminderAt.Local().Format(time.DateTime)))
		}
	}
	if len(pending) > 0 {
		fmt.Fprintln(stdout, "\nPending Reminders:")
		for _, s := range pending {
			fmt.Fprintf(stdout, "  - %s\n", s)
		}
	}
	return nil
}

func runSuggest(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: pilot suggest <task-id>")
	}

	a, err := newApp(ctx, cfg, stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	task, ok := a.store.Snapshot().Tasks[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", board.ErrTaskNotFound, args[0])
	}

	res, err := a.runner().Run(ctx, task.ID, task.Title, task.Description)
	if err != nil {
		return err
	}
	if res.Failed() {
		return fmt.Errorf("%s: %w", res.Subtasks[0], res.Err)
	}

	fmt.Fprintf(stdout, "Suggested subtasks for %q:\n", task.Title)
	for _, s := range res.Subtasks {
		fmt.Fprintf(stdout, "  - %s\n", s)
	}
	return nil
}

func runInit(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	pilotDir := filepath.Join(targetDir, config.DefaultDir)
	if err := os.MkdirAll(pilotDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DefaultDir, err)
	}
	fmt.Fprintf(stdout, "✓ Created %s/ directory\n", config.DefaultDir)

	gitignorePath := filepath.Join(pilotDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("pilot.db*\npilot.log\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(stdout, "✓ Created %s/.gitignore\n", config.DefaultDir)

	configPath := filepath.Join(pilotDir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✓ Wrote %s\n", configPath)
	}

	dbPath := cfg.Reminders.DBPath
	if dbPath == config.DefaultDBPath {
		dbPath = filepath.Join(targetDir, config.DefaultDBPath)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(stdout, "✓ Initialized database at %s\n", dbPath)

	fmt.Fprintln(stdout, "✓ Project Pilot initialized successfully")
	return nil
}

// writeConfig saves cfg as TOML, leaving out the API key.
func writeConfig(path string, cfg *config.Config) error {
	out := *cfg
	out.Suggest.APIKey = ""

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(out); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
