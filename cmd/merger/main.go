// The merger command runs Phase 2 of the indexing pipeline: it consumes the
// globally sorted posting stream and writes the block-compressed posting
// files, the lexicon, the document lengths, and the collection statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuqi-zhai/passagerank/internal/merger"
	"github.com/yuqi-zhai/passagerank/pkg/config"
	"github.com/yuqi-zhai/passagerank/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (used for logging settings)")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	inputPath, outDir := args[0], args[1]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting merge",
		"input", inputPath,
		"out_dir", outDir,
		"block_size", merger.BlockSize,
	)

	m, err := merger.New(outDir)
	if err != nil {
		slog.Error("failed to create merger", "error", err)
		os.Exit(1)
	}
	if err := m.Run(ctx, inputPath); err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: merger [flags] <postings_sorted.tsv> <out_dir>

Input lines are "term<TAB>docID<TAB>tf", sorted ascending by (term, docID).

Output files:
  postings.docids.bin   block-compressed docIDs (gap-encoded varbyte)
  postings.freqs.bin    block-compressed frequencies (varbyte)
  lexicon.tsv           term dictionary with offsets
  doc_len.bin           packed u32 document lengths
  stats.txt             collection statistics

Flags:
`)
	flag.PrintDefaults()
}
