// Command zenrec uploads recorded audio files to a ZenZone server and
// prints the resulting stress reports.
//
// Each file is driven through the recorder state machine exactly like a
// live capture: decode, re-encode as WAV when possible, upload, report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/MrWong99/zenzone/pkg/recorder"
)

func main() {
	os.Exit(run())
}

func run() int {
	server := flag.String("server", "http://localhost:8080", "base URL of the ZenZone server")
	userID := flag.String("user", "", "user identity to attach to the uploads")
	verbose := flag.Bool("v", false, "print recorder state transitions")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: zenrec [-server URL] [-user ID] file.wav [file2.mp3 …]")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader := recorder.NewHTTPUploader(strings.TrimRight(*server, "/") + "/analyze")

	failed := 0
	for _, path := range files {
		if err := analyzeFile(ctx, path, uploader, *userID, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "zenrec: %s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// analyzeFile runs one file through the recorder state machine and prints
// the report.
func analyzeFile(ctx context.Context, path string, uploader recorder.Uploader, userID string, verbose bool) error {
	opts := []recorder.Option{recorder.WithUserID(userID)}
	if verbose {
		opts = append(opts, recorder.WithObserver(func(t recorder.Transition) {
			fmt.Fprintf(os.Stderr, "  %s → %s (%s)", t.From, t.To, t.Event)
			if t.Strategy != "" {
				fmt.Fprintf(os.Stderr, " via %s", t.Strategy)
			}
			fmt.Fprintln(os.Stderr)
		}))
	}

	rec := recorder.New(&fileSource{path: path}, uploader, opts...)
	if err := rec.Start(ctx); err != nil {
		return err
	}
	report, err := rec.Stop(ctx)
	if err != nil {
		return err
	}

	printReport(path, report)
	return nil
}

func printReport(path string, r *recorder.Report) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  stress   : %.1f / 100 (%s)\n", r.StressScore, r.FriendlyLabel)
	fmt.Printf("  emotion  : %s\n", r.Emotion)
	if r.Text != "" {
		fmt.Printf("  text     : %s\n", r.Text)
	}
	fmt.Printf("  suggest  : %s — %s\n", r.Suggestion.Action, r.Suggestion.Description)
}

// fileSource adapts an audio file on disk to the recorder's capture
// interface. Start validates the file exists; Stop reads it.
type fileSource struct {
	path string
}

var _ recorder.Source = (*fileSource)(nil)

func (s *fileSource) Start(context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s.path)
	}
	return nil
}

func (s *fileSource) Stop(context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeFor(s.path), nil
}

// contentTypeFor maps a file extension to its audio MIME type.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
