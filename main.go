package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/config"
	"github.com/lotas/tabkeeper/internal/export"
	"github.com/lotas/tabkeeper/internal/firefox"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/server"
	"github.com/lotas/tabkeeper/internal/snapshot"
	"github.com/lotas/tabkeeper/internal/storage"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/tui"
	"github.com/lotas/tabkeeper/internal/types"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "import":
			runImport(os.Args[2:])
			return
		case "snapshot":
			runSnapshot(os.Args[2:])
			return
		case "export":
			runExport(os.Args[2:])
			return
		case "profiles":
			runProfiles()
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	fs := flag.NewFlagSet("tabkeeper", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path (env: TABKEEPER_CONFIG)")
	profileName := fs.String("profile", "", "Snapshot profile name")
	liveMode := fs.Bool("live", false, "Serve the browser extension and track open windows")
	port := fs.Int("port", 0, "WebSocket port for live mode (default from config)")
	fs.Parse(os.Args[1:])

	cfg := mustConfig(*configPath)
	if *port != 0 {
		cfg.Live.Port = *port
	}
	setupLog(cfg)
	defer applog.Close()

	db := mustDB(cfg)
	defer db.Close()

	browserProfiles, err := firefox.DiscoverProfiles()
	if err != nil {
		applog.Error("main.profiles", err)
	}
	profile := resolveProfile(*profileName, cfg, browserProfiles)

	mgr := newManager(cfg)
	if _, err := snapshot.Load(db, mgr, profile, 0); err != nil && !errors.Is(err, storage.ErrSnapshotNotFound) {
		fmt.Fprintf(os.Stderr, "Error loading saved windows: %v\n", err)
		os.Exit(1)
	}

	var srv *server.Server
	if *liveMode {
		srv = server.New(cfg.Live.Port)
	}

	model := tui.NewModel(tui.Options{
		Manager:         mgr,
		DB:              db,
		Server:          srv,
		Profile:         profile,
		BrowserProfiles: browserProfiles,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabkeeper: keep browser windows and saved tab sets side by side

Usage:
  tabkeeper                                            Start the TUI (default)
    --config <file>        Config file (env: TABKEEPER_CONFIG)
    --profile <name>       Snapshot profile (env: TABKEEPER_PROFILE)
    --live                 Serve the browser extension and track open windows
    --port <n>             WebSocket port for live mode (default: 19191)

  tabkeeper import                                     Save windows from a Firefox session file
    --profile <name>       Firefox profile name (default profile if empty)
    --closed               Include recently closed windows
    --label <text>         Label for the snapshot (default: "import")

  tabkeeper export                                     Export saved windows to stdout or file
    --profile <name>       Snapshot profile
    --rev <n>              Snapshot revision (default: latest)
    --json                 Export as JSON instead of markdown
    --out <file>           Output file path (default: stdout)
    --live                 Export the open windows from the extension instead
    --port <n>             WebSocket port for live mode (default: 19191)

  tabkeeper profiles                                   List Firefox profiles

  tabkeeper snapshot list                              List saved snapshots
  tabkeeper snapshot diff [rev] [rev2] [--profile X]   Compare snapshots (default: latest two)
  tabkeeper snapshot delete <rev> [--profile X] [--yes]  Delete a snapshot
  tabkeeper snapshot restore <rev> [--profile X] [--port N]  Reopen saved windows via the extension

Environment:
  TABKEEPER_CONFIG       Config file path
  TABKEEPER_PROFILE      Snapshot profile (overridden by --profile)
  TABKEEPER_PORT         WebSocket port
  TABKEEPER_DB           Database path
  TABKEEPER_LOG_DIR      Log directory
  TABKEEPER_LANG         UI language (en, de)
`)
}

func mustConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLog opens the log file. Logging is best effort; the tool still runs
// without it.
func setupLog(cfg config.Config) {
	if err := applog.Init(cfg.Log.Dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
}

func mustDB(cfg config.Config) *sql.DB {
	db, err := storage.OpenDB(cfg.DB.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func newManager(cfg config.Config) *lifecycle.Manager {
	return lifecycle.New(tree.New(), i18n.New(cfg.Locale))
}

// resolveProfile picks the snapshot profile: flag, then config/env, then the
// default Firefox profile, then "default".
func resolveProfile(flagValue string, cfg config.Config, browserProfiles []types.Profile) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.Profile != "" {
		return cfg.Profile
	}
	if p, err := firefox.SelectProfile(browserProfiles, ""); err == nil {
		return p.Name
	}
	return "default"
}

func discoverProfiles() []types.Profile {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		applog.Error("main.profiles", err)
	}
	return profiles
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !strings.Contains(args[i], "=") {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

func parseRev(s string) int {
	rev, err := strconv.Atoi(s)
	if err != nil || rev <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid revision number: %s\n", s)
		os.Exit(1)
	}
	return rev
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	profileName := fs.String("profile", "", "Firefox profile name")
	closed := fs.Bool("closed", false, "Include recently closed windows")
	label := fs.String("label", "import", "Label for the snapshot")
	fs.Parse(args)

	cfg := mustConfig(*configPath)
	setupLog(cfg)
	defer applog.Close()

	name := *profileName
	if name == "" {
		name = cfg.Profile
	}
	p, err := firefox.SelectProfile(discoverProfiles(), name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	windows, err := firefox.ReadSessionFile(p.Path, *closed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading session: %v\n", err)
		os.Exit(1)
	}

	db := mustDB(cfg)
	defer db.Close()

	mgr := newManager(cfg)
	if _, err := snapshot.Load(db, mgr, p.Name, 0); err != nil && !errors.Is(err, storage.ErrSnapshotNotFound) {
		fmt.Fprintf(os.Stderr, "Error loading saved windows: %v\n", err)
		os.Exit(1)
	}
	imported, err := snapshot.ImportSession(mgr, windows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing session: %v\n", err)
		os.Exit(1)
	}

	rev, created, diff, err := snapshot.Save(db, mgr, p.Name, *label)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating snapshot: %v\n", err)
		os.Exit(1)
	}
	if !created {
		fmt.Printf("No changes since snapshot #%d\n", rev)
		return
	}
	fmt.Printf("Imported %d windows from %s, snapshot #%d created\n", imported, p.Name, rev)
	if diff != nil && (len(diff.Added) > 0 || len(diff.Removed) > 0) {
		fmt.Println()
		fmt.Print(snapshot.FormatDiff(diff))
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	profileName := fs.String("profile", "", "Snapshot profile")
	rev := fs.Int("rev", 0, "Snapshot revision (default: latest)")
	jsonFlag := fs.Bool("json", false, "Export as JSON instead of markdown")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	liveMode := fs.Bool("live", false, "Export the open windows from the extension")
	port := fs.Int("port", 0, "WebSocket port for live mode")
	fs.Parse(args)

	cfg := mustConfig(*configPath)
	if *port != 0 {
		cfg.Live.Port = *port
	}
	setupLog(cfg)
	defer applog.Close()

	profile := resolveProfile(*profileName, cfg, discoverProfiles())
	mgr := newManager(cfg)

	if *liveMode {
		if err := exportLive(mgr, cfg.Live.Port); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		db := mustDB(cfg)
		defer db.Close()
		if _, err := snapshot.Load(db, mgr, profile, *rev); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var output string
	var err error
	if *jsonFlag {
		output, err = export.JSON(mgr, profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
	} else {
		output = export.Markdown(mgr, profile)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(output)
	}
}

// exportLive waits for the extension's initial snapshot and applies it to
// mgr the same way the TUI applies it.
func exportLive(mgr *lifecycle.Manager, port int) error {
	srv := server.New(port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe(ctx) }()

	fmt.Fprintf(os.Stderr, "Waiting for Firefox extension on port %d...\n", port)

	timeout := time.After(10 * time.Second)
	for {
		select {
		case err := <-served:
			return fmt.Errorf("serve extension on port %d: %w", port, err)
		case msg := <-srv.Messages():
			if msg.Type == server.MsgSnapshot {
				return server.Dispatch(msg, mgr)
			}
		case <-timeout:
			return fmt.Errorf("timed out waiting for extension (10s)")
		}
	}
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s%s\n  %s\n  session %s (%s)\n",
			p.Name, suffix, p.Path, filepath.Base(p.Session), p.SessionAt.Local().Format("2006-01-02 15:04"))
	}
}

func runSnapshot(args []string) {
	if len(args) == 0 {
		runSnapshotList(nil)
		return
	}

	subcmd := args[0]
	subArgs := args[1:]

	switch subcmd {
	case "list":
		runSnapshotList(subArgs)
	case "diff":
		runSnapshotDiff(subArgs)
	case "delete":
		runSnapshotDelete(subArgs)
	case "restore":
		runSnapshotRestore(subArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown snapshot command %q. Use list, diff, delete, or restore.\n", subcmd)
		os.Exit(1)
	}
}

func runSnapshotList(args []string) {
	fs := flag.NewFlagSet("snapshot list", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	fs.Parse(args)

	cfg := mustConfig(*configPath)
	db := mustDB(cfg)
	defer db.Close()

	snaps, err := storage.ListSnapshots(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing snapshots: %v\n", err)
		os.Exit(1)
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots found.")
		return
	}

	fmt.Printf("%-5s %4s %5s  %-12s %-20s  %s\n", "REV", "WIN", "TABS", "PROFILE", "LABEL", "CREATED")
	for _, s := range snaps {
		fmt.Printf("%5d %4d %5d  %-12s %-20s  %s\n",
			s.Rev,
			s.WindowCount,
			s.TabCount,
			s.Profile,
			s.Name,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
}

func runSnapshotDiff(args []string) {
	fs := flag.NewFlagSet("snapshot diff", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	profileName := fs.String("profile", "", "Snapshot profile")
	fs.Parse(reorderArgs(args))

	cfg := mustConfig(*configPath)
	profile := resolveProfile(*profileName, cfg, discoverProfiles())

	db := mustDB(cfg)
	defer db.Close()

	var from, to int
	switch fs.NArg() {
	case 0, 1:
		latest, err := storage.GetLatestSnapshot(db, profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if latest == nil {
			fmt.Fprintf(os.Stderr, "No snapshots for profile %q.\n", profile)
			os.Exit(1)
		}
		to = latest.Rev
		from = to - 1
		if fs.NArg() == 1 {
			from = parseRev(fs.Arg(0))
		}
		if from < 1 {
			fmt.Println("Only one snapshot, nothing to compare.")
			return
		}
	case 2:
		from = parseRev(fs.Arg(0))
		to = parseRev(fs.Arg(1))
	default:
		fmt.Fprintln(os.Stderr, "Usage: tabkeeper snapshot diff [rev] [rev2] [--profile name]")
		os.Exit(1)
	}

	result, err := snapshot.DiffRevisions(db, profile, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(snapshot.FormatDiff(result))
}

func runSnapshotDelete(args []string) {
	fs := flag.NewFlagSet("snapshot delete", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	profileName := fs.String("profile", "", "Snapshot profile")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabkeeper snapshot delete <rev> [--profile name] [--yes]")
		os.Exit(1)
	}
	rev := parseRev(fs.Arg(0))

	cfg := mustConfig(*configPath)
	setupLog(cfg)
	defer applog.Close()
	profile := resolveProfile(*profileName, cfg, discoverProfiles())

	if !*yes {
		fmt.Printf("Delete snapshot #%d of %s? [y/N] ", rev, profile)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	db := mustDB(cfg)
	defer db.Close()

	if err := storage.DeleteSnapshot(db, profile, rev); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting snapshot: %v\n", err)
		os.Exit(1)
	}
	applog.Info("snapshot.deleted", "rev", rev, "profile", profile)
	fmt.Printf("Snapshot #%d deleted.\n", rev)
}

func runSnapshotRestore(args []string) {
	fs := flag.NewFlagSet("snapshot restore", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	profileName := fs.String("profile", "", "Snapshot profile")
	port := fs.Int("port", 0, "WebSocket port for live mode")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabkeeper snapshot restore <rev> [--profile name] [--port N]")
		os.Exit(1)
	}
	rev := parseRev(fs.Arg(0))

	cfg := mustConfig(*configPath)
	if *port != 0 {
		cfg.Live.Port = *port
	}
	setupLog(cfg)
	defer applog.Close()
	profile := resolveProfile(*profileName, cfg, discoverProfiles())

	db := mustDB(cfg)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := snapshot.Restore(ctx, db, profile, rev, cfg.Live.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Error restoring snapshot: %v\n", err)
		os.Exit(1)
	}
}
