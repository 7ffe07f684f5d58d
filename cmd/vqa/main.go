// Command vqa runs the engine in-process from the command line: ingest a
// video, ask about it, summarise it or drop its cached responses. It reads
// the same configuration as the server, so with shared cache and index
// backends it sees what the server has ingested.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/app"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "vqa",
		Short:         "Ask questions about videos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(ingestCmd(), askCmd(), summarizeCmd(), invalidateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads config, builds the engine and runs fn against it.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := "error"
	if verbose {
		level = "debug"
	}
	logger.SetupWriter(os.Stderr, level, "text")

	a, err := app.New(ctx, cfg, analytics.Discard{}, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func ingestCmd() *cobra.Command {
	var duration, language string
	cmd := &cobra.Command{
		Use:   "ingest <url-or-id>",
		Short: "Download, transcribe and index a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ingest.ParseDuration(duration)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				videoID, err := a.Engine.Ingest(cmd.Context(), args[0], ingest.Options{Duration: d, Language: language})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(ingest.Response{VideoID: videoID, Status: ingest.StatusIndexed})
				}
				fmt.Printf("indexed %s\n", videoID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&duration, "duration", "d", string(ingest.FullVideo), "portion to transcribe (full_video, first_5_minutes, ...)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language hint, e.g. en")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		method string
		k      int
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "ask <video-id> <question...>",
		Short: "Answer a question from a video's transcript",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := engine.ParseSearchMethod(method)
			if err != nil {
				return err
			}
			videoID, question := args[0], strings.Join(args[1:], " ")
			opts := engine.QueryOptions{SearchMethod: m, K: k}
			return withApp(cmd.Context(), func(a *app.App) error {
				if stream && !jsonOutput {
					return streamAnswer(cmd.Context(), a.Engine, cmd.OutOrStdout(), videoID, question, opts)
				}
				answer, err := a.Engine.Answer(cmd.Context(), videoID, question, opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(answer)
				}
				fmt.Println(answer.Response)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", string(engine.MethodHybrid), "search method: vector, keyword or hybrid")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "passages to retrieve (0 uses the configured default)")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "print tokens as they arrive")
	return cmd
}

func streamAnswer(ctx context.Context, e *engine.Engine, w io.Writer, videoID, question string, opts engine.QueryOptions) error {
	s, err := e.Stream(ctx, videoID, question, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w)
			return err
		}
		// A cache hit arrives as a single terminal chunk carrying the text.
		fmt.Fprint(w, chunk.Token)
		if chunk.IsComplete {
			fmt.Fprintln(w)
		}
	}
}

func summarizeCmd() *cobra.Command {
	var length string
	cmd := &cobra.Command{
		Use:   "summarize <video-id>",
		Short: "Summarise a video's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := llm.ParseSummaryLength(length)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				summary, err := a.Engine.Summarize(cmd.Context(), args[0], l)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]string{"video_id": args[0], "length": string(l), "summary": summary})
				}
				fmt.Println(summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&length, "length", "l", string(llm.SummaryMedium), "short, medium or long")
	return cmd
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <video-id>",
		Short: "Drop cached answers and summaries for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Engine.Invalidate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{"video_id": args[0], "removed": n})
				}
				fmt.Printf("removed %d cached responses\n", n)
				return nil
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
