package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kirillkom/diary-persona-chat/internal/bootstrap"
	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/chunking"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/corpusfile"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/extractor/pdftext"
)

type splitOptions struct {
	endMarker string
	summarize bool
	perMinute int
}

func newSplitCmd() *cobra.Command {
	opts := splitOptions{}
	cmd := &cobra.Command{
		Use:   "split <diary.pdf|diary.txt> <chunks.xlsx>",
		Short: "Split the diary into one chunk per dated entry",
		Long: `Extract the diary text, cut it at every entry date heading and write the chunks
as a spreadsheet. With --summarize each chunk also gets an LLM description and
people list, throttled to --per-minute requests.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var summarizer ports.ChunkSummarizer
			if opts.summarize {
				s, err := bootstrap.NewSummarizer(cmd.Context(), config.Load())
				if err != nil {
					return err
				}
				summarizer = s
			}

			n, err := runSplit(cmd.Context(), args[0], args[1], opts, summarizer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chunks to %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.endMarker, "end-marker", chunking.DefaultEndMarker, "Text that starts the afterword")
	cmd.Flags().BoolVar(&opts.summarize, "summarize", false, "Generate description and people for each chunk")
	cmd.Flags().IntVar(&opts.perMinute, "per-minute", 10, "Summarization requests per minute")
	return cmd
}

func runSplit(ctx context.Context, inPath, outPath string, opts splitOptions, summarizer ports.ChunkSummarizer) (int, error) {
	text, err := readDiaryText(ctx, inPath)
	if err != nil {
		return 0, err
	}

	chunks := chunking.NewDiarySplitter(opts.endMarker).Split(text)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "split diary", errors.New("no text extracted"))
	}

	if summarizer != nil {
		if err := summarizeChunks(ctx, chunks, summarizer, opts.perMinute); err != nil {
			return 0, err
		}
	}

	if err := corpusfile.WriteXLSXFile(outPath, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func readDiaryText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdftext.NewExtractor().ExtractFile(ctx, path)
	case ".txt":
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read diary text: %w", err)
		}
		return string(raw), nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "read diary", fmt.Errorf("unsupported file type %q", filepath.Ext(path)))
	}
}

// summarizeChunks fills metadata in place. A failed chunk keeps blank
// metadata and the run continues.
func summarizeChunks(ctx context.Context, chunks []domain.Chunk, summarizer ports.ChunkSummarizer, perMinute int) error {
	if perMinute <= 0 {
		perMinute = 10
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

	failed := 0
	for i := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("summarize chunks: %w", err)
		}
		summary, err := summarizer.Summarize(ctx, chunks[i].Text)
		if err != nil {
			failed++
			slog.Warn("chunk_summary_failed", "title", chunks[i].Title, "error", err)
			continue
		}
		chunks[i].Description = summary.Description
		chunks[i].PeopleInvolved = summary.PeopleInvolved
	}
	slog.Info("chunk_summaries_done", "chunks", len(chunks), "failed", failed)
	return nil
}
