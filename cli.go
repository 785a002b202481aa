package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"shorts-pipeline/04_visuals"
	"shorts-pipeline/config"
	"shorts-pipeline/logger"
	"shorts-pipeline/pipeline"
	"shorts-pipeline/types"
)

func newApp() *cli.App {
	app := &cli.App{
		Name:    "shorts-pipeline",
		Usage:   "Turn a topic into a narrated, captioned vertical short",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "Path to config.yaml"},
			&cli.StringFlag{Name: "log-level", Usage: "Override pipeline.log_level (debug|info|warn|error)"},
		},
		Commands: []*cli.Command{
			runCmd(),
			batchCmd(),
			historyCmd(),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setup loads config and builds the logger shared by every command.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Pipeline.LogLevel
	if l := c.String("log-level"); l != "" {
		level = l
	}
	log := logger.New(logger.Config{
		Writer:      c.App.ErrWriter,
		Format:      cfg.Pipeline.LogFormat,
		Environment: cfg.Pipeline.Environment,
		Level:       logger.ParseLevel(level),
	})
	return cfg, log, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// openPipeline wires the production pipeline. The returned close func
// releases the shared history.
func openPipeline(cfg *config.Config, log *slog.Logger) (*pipeline.Pipeline, func(), error) {
	shared, err := pipeline.NewShared(cfg)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(cfg, shared, log)
	if err != nil {
		shared.Close()
		return nil, nil, err
	}
	return p, func() {
		if err := shared.Close(); err != nil {
			log.Warn("history not closed cleanly", "error", err)
		}
	}, nil
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Produce one short",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Usage: "Topic to narrate (researched when empty)"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			p, closeFn, err := openPipeline(cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := signalContext(c)
			defer cancel()

			state, err := p.Run(ctx, c.String("topic"))
			printSummary(c.App.Writer, state)
			if err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}

func batchCmd() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Produce one short per topic in a file, several at a time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topics-file", Aliases: []string{"f"}, Required: true, Usage: "File with one topic per line"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent runs (default pipeline.workers)"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			topics, err := readTopics(c.String("topics-file"))
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				return cli.Exit("topics file has no topics", 1)
			}

			workers := cfg.Pipeline.Workers
			if w := c.Int("workers"); w > 0 {
				workers = w
			}

			p, closeFn, err := openPipeline(cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := signalContext(c)
			defer cancel()

			failed := runBatch(ctx, p, topics, workers, log)
			for _, state := range failed {
				fmt.Fprintf(c.App.Writer, "FAILED %s (%s): %s\n", state.Topic, state.FailedStage, state.Error)
			}
			if len(failed) > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d runs failed", len(failed), len(topics)), 1)
			}
			return nil
		},
	}
}

// runner is what a batch needs from the pipeline.
type runner interface {
	Run(ctx context.Context, topic string) (*types.PipelineState, error)
}

// runBatch runs every topic with at most workers runs in flight. A failed
// run does not stop the others; the failed states are returned in topic
// order.
func runBatch(ctx context.Context, p runner, topics []string, workers int, log *slog.Logger) []*types.PipelineState {
	var g errgroup.Group
	g.SetLimit(max(workers, 1))

	var mu sync.Mutex
	failed := make(map[int]*types.PipelineState)
	for i, topic := range topics {
		g.Go(func() error {
			state, err := p.Run(ctx, topic)
			if err != nil {
				if state == nil {
					state = &types.PipelineState{Topic: topic, Error: err.Error()}
				}
				mu.Lock()
				failed[i] = state
				mu.Unlock()
				return nil
			}
			log.Info("batch item done", "topic", topic, "video", state.VideoFile)
			return nil
		})
	}
	_ = g.Wait()

	idx := make([]int, 0, len(failed))
	for i := range failed {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]*types.PipelineState, 0, len(idx))
	for _, i := range idx {
		out = append(out, failed[i])
	}
	return out
}

// readTopics returns the non-empty lines of path; lines starting with # are
// comments.
func readTopics(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topics file: %w", err)
	}
	defer f.Close()

	var topics []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		topics = append(topics, line)
	}
	return topics, sc.Err()
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect or prune the background clip usage history",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "List clips by last use, newest first",
				Action: func(c *cli.Context) error {
					cfg, _, err := setup(c)
					if err != nil {
						return err
					}
					h, err := visuals.OpenHistory(cfg.History)
					if err != nil {
						return err
					}
					defer h.Close()

					snap, err := h.Snapshot(c.Context)
					if err != nil {
						return err
					}
					printHistory(c.App.Writer, snap, time.Now(), cfg.History.Window)
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Delete entries older than the freshness window",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Age cutoff (default history.window)"},
				},
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					age := cfg.History.Window
					if d := c.Duration("older-than"); d > 0 {
						age = d
					}
					h, err := visuals.OpenHistory(cfg.History)
					if err != nil {
						return err
					}
					defer h.Close()

					n, err := h.Prune(c.Context, time.Now().Add(-age))
					if err != nil {
						return err
					}
					log.Info("history pruned", "removed", n, "older_than", age)
					fmt.Fprintf(c.App.Writer, "removed %d entries\n", n)
					return nil
				},
			},
		},
	}
}

type historyRow struct {
	key  string
	used int64
}

func printHistory(w io.Writer, snap map[types.Provider]map[string]int64, now time.Time, window time.Duration) {
	var rows []historyRow
	for p, ids := range snap {
		for id, ts := range ids {
			rows = append(rows, historyRow{key: types.AssetKey(p, id), used: ts})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].used != rows[j].used {
			return rows[i].used > rows[j].used
		}
		return rows[i].key < rows[j].key
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIP\tLAST USED\tREUSABLE")
	for _, r := range rows {
		used := time.Unix(r.used, 0)
		reusable := "no"
		if now.Sub(used) >= window {
			reusable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.key, humanize.RelTime(used, now, "ago", "from now"), reusable)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d clips\n", len(rows))
}

func printSummary(w io.Writer, state *types.PipelineState) {
	if state == nil {
		return
	}
	fmt.Fprintf(w, "run %s: %s\n", state.RunID, state.Topic)
	if state.Budget != nil {
		fmt.Fprintf(w, "  duration  %.3fs (cta: %s)\n", state.Budget.Total(), state.CTA)
	}
	if state.VideoFile != "" {
		fmt.Fprintf(w, "  video     %s\n", state.VideoFile)
	}
	if state.YouTubeURL != "" {
		fmt.Fprintf(w, "  youtube   %s\n", state.YouTubeURL)
	}
	for _, d := range state.Degradations {
		fmt.Fprintf(w, "  degraded  %s: %s\n", d.Stage, d.Message)
	}
	if state.Error != "" {
		fmt.Fprintf(w, "  failed    %s\n", state.Error)
	}
}
