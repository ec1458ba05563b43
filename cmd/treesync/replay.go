// ABOUTME: replay command: connect the in-memory backend and apply recorded events
// ABOUTME: Prints every cached subtree as colorized JSON followed by a summary

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/treesync/internal/backend/memory"
	"github.com/2389/treesync/internal/config"
	"github.com/2389/treesync/internal/connection"
	"github.com/2389/treesync/internal/event"
	"github.com/2389/treesync/internal/journal"
	"github.com/2389/treesync/internal/lifecycle"
	"github.com/2389/treesync/internal/metrics"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/orchestrator"
	"github.com/2389/treesync/internal/pending"
	"github.com/2389/treesync/internal/reconcile"
	"github.com/2389/treesync/internal/state"
	"github.com/2389/treesync/internal/tree"
)

// maxEventLine bounds a single JSON line in the events file.
const maxEventLine = 1 << 20

func runReplay(ctx context.Context, args []string) error {
	ra, err := parseReplayArgs(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if ra.configPath != "" {
		cfg, err = config.Load(ra.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	var in io.Reader = os.Stdin
	if ra.eventsPath != "-" {
		f, err := os.Open(ra.eventsPath)
		if err != nil {
			return fmt.Errorf("opening events: %w", err)
		}
		defer f.Close()
		in = f
	}

	return replay(ctx, cfg, ra, in, os.Stdout, logger)
}

// replaySummary counts what a replay did.
type replaySummary struct {
	Events  int
	Changes int
	Pending int
	UID     string
}

// replay wires the full stack against the in-memory backend, feeds every
// event in r through the connection's change stream and prints the cache to w.
func replay(ctx context.Context, cfg *config.Config, ra replayArgs, r io.Reader, w io.Writer, logger *slog.Logger) error {
	bus := notify.NewBroadcaster(logger)
	defer bus.Close()
	st := state.New(bus, logger)
	m := metrics.New()

	changes := 0
	tracing := false
	cache := tree.NewCache(logger, func(ch tree.Change) {
		changes++
		if tracing {
			traceChange(w, ch, logger)
		}
	})
	for name, opts := range cfg.SubtreeOptions() {
		cache.Declare(name, opts)
	}

	tracker := pending.New(cfg.Pending.TTL, cfg.Pending.MaxSize, cfg.Pending.SweepInterval)
	defer tracker.Close()

	engineOpts := []reconcile.Option{
		reconcile.WithTracker(tracker),
		reconcile.WithCommitter(st),
		reconcile.WithMetrics(m),
		reconcile.WithLogger(logger),
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithRouteChange(cfg.Lifecycle.RouteChange),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(logger),
	}
	if cfg.Journal.Path != "" {
		j, err := journal.NewSQLiteJournal(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		engineOpts = append(engineOpts, reconcile.WithJournal(j))
		orchOpts = append(orchOpts, orchestrator.WithJournal(j))
	}

	engine := reconcile.New(cache, engineOpts...)
	if _, err := engine.Restore(ctx); err != nil {
		return err
	}
	changes = 0
	tracing = ra.trace

	conn := connection.NewManager(memory.New(memory.WithLogger(logger)), logger)
	orch := orchestrator.New(conn, engine, st, orchOpts...)
	defer orch.Close()

	if err := orch.Register(lifecycle.Action{
		Name: "announce-session",
		On:   lifecycle.MilestoneLoggedIn,
		Callback: func(_ context.Context, ec lifecycle.EventContext) error {
			logger.Info("session started", "uid", ec.UID, "anonymous", ec.IsAnonymous)
			return nil
		},
	}); err != nil {
		return err
	}

	db, err := orch.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	orch.WatchAuthChanges(ctx)
	user, err := orch.AnonymousLogin(ctx)
	if err != nil {
		return err
	}

	stream, ok := db.(*memory.DB)
	if !ok {
		return fmt.Errorf("unexpected connection type %T", db)
	}

	summary := replaySummary{UID: user.UID}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var ev event.Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return fmt.Errorf("line %d: decoding event: %w", line, err)
		}
		stream.Emit(ev)
		summary.Events++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}

	if err := engine.Persist(ctx); err != nil {
		return err
	}

	if ra.metricsPath != "" {
		if err := m.WriteTextfile(ra.metricsPath); err != nil {
			return err
		}
	}

	summary.Changes = changes
	summary.Pending = len(engine.Pending())
	return printTree(w, cache.Snapshot(), summary)
}

// traceChange prints the merge patch of one applied change.
func traceChange(w io.Writer, ch tree.Change, logger *slog.Logger) {
	patch, err := tree.MergePatch(ch.Old, ch.New)
	if err != nil {
		logger.Warn("computing merge patch", "subtree", ch.Subtree, "error", err)
		return
	}
	label := ch.Subtree
	if label == tree.RootSubtree {
		label = "(root)"
	}
	color.New(color.FgYellow).Fprintf(w, "~ %s ", label)
	fmt.Fprintf(w, "%s\n", patch)
}

// printTree writes every subtree in name order.
func printTree(w io.Writer, subtrees map[string]tree.State, s replaySummary) error {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	names := make([]string, 0, len(subtrees))
	for name := range subtrees {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		label := name
		if name == tree.RootSubtree {
			label = "(root)"
		}
		green.Fprint(w, "▶ ")
		cyan.Fprintln(w, label)

		body, err := json.MarshalIndent(subtrees[name], "  ", "  ")
		if err != nil {
			return fmt.Errorf("encoding subtree %q: %w", name, err)
		}
		fmt.Fprintf(w, "  %s\n", body)
	}

	gray.Fprintf(w, "%d events, %d changes, %d pending local changes, uid %s\n",
		s.Events, s.Changes, s.Pending, s.UID)
	return nil
}
