// Command segtool runs maintenance jobs against the segment database.
//
//	segtool load 8403912 https://www.strava.com/segments/13651993
//	segtool load -file ids.txt
//	segtool backfill-map
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gitea.jw6.us/james/segtrack/internal/app"
	"gitea.jw6.us/james/segtrack/internal/config"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/store"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

const usage = `usage: segtool <command> [flags]

commands:
  load [-file path] <id|url>...   add Strava segments that are not tracked yet
  backfill-map                     fetch polyline and start point for rows missing them
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "segtool:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "load":
		ids, err := loadArgs(args[1:])
		if err != nil {
			return err
		}
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.Segments.Load(ctx, ids)
		fmt.Fprintf(out, "loaded %d, skipped %d, failed %d\n", sum.Loaded, sum.Skipped, sum.Failed)
		return err
	case "backfill-map":
		a, err := open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.Segments.BackfillMapData(ctx)
		fmt.Fprintf(out, "updated %d, unchanged %d, failed %d\n", sum.Updated, sum.Unchanged, sum.Failed)
		return err
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console"})
	return app.New(ctx, cfg)
}

// loadArgs collects segment ids from positional arguments and the optional
// -file list. Both plain ids and segment URLs are accepted.
func loadArgs(args []string) ([]int64, error) {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	file := fs.String("file", "", "read ids or urls from `path`, one per line, # starts a comment")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	raw := fs.Args()
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		lines, err := readList(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", *file, err)
		}
		raw = append(raw, lines...)
	}
	if len(raw) == 0 {
		return nil, errors.New("load: no segment ids given")
	}
	return parseIDs(raw)
}

func readList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func parseIDs(raw []string) ([]int64, error) {
	seen := make(map[int64]bool, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, ok := store.ExtractSegmentID(s)
		if !ok {
			var err error
			if id, err = strava.ParseID(s); err != nil {
				return nil, err
			}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
