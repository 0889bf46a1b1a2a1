// The indexer command runs Phase 1 of the indexing pipeline: it streams a
// tab-separated collection (or a Kafka topic with --kafka), assigns internal
// docIDs, and writes the document table, content files, and partitioned flat
// postings. The partitions must then be sorted externally, e.g.:
//
//	cat out/postings_part_*.tsv | LC_ALL=C sort -t $'\t' -k1,1 -k2,2n > postings_sorted.tsv
//
// before the merger builds the compressed index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/yuqi-zhai/passagerank/internal/builder"
	"github.com/yuqi-zhai/passagerank/internal/ingest"
	"github.com/yuqi-zhai/passagerank/pkg/config"
	"github.com/yuqi-zhai/passagerank/pkg/kafka"
	"github.com/yuqi-zhai/passagerank/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (used for Kafka and logging settings)")
	useKafka := flag.Bool("kafka", false, "consume documents from Kafka instead of an input file")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var inputPath, outDir string
	partSizeGB := cfg.Index.PartSizeGB
	if *useKafka {
		if len(args) < 1 {
			usage()
			os.Exit(1)
		}
		outDir = args[0]
		if len(args) >= 2 {
			partSizeGB = parsePartSize(args[1])
		}
	} else {
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		inputPath = args[0]
		outDir = args[1]
		if len(args) > 2 {
			partSizeGB = parsePartSize(args[2])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := builder.New(outDir, partSizeGB)
	if err != nil {
		slog.Error("failed to create builder", "error", err)
		os.Exit(1)
	}

	if *useKafka {
		slog.Info("starting Kafka ingest",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.DocumentTopic,
			"out_dir", outDir,
		)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.DocumentTopic, ingest.HandleMessage(b))
		source := ingest.New(consumer)
		if err := source.Start(ctx); err != nil {
			slog.Error("kafka ingest failed", "error", err)
			b.Close()
			os.Exit(1)
		}
	} else {
		slog.Info("starting collection ingest",
			"input", inputPath,
			"out_dir", outDir,
			"part_size_gb", partSizeGB,
		)
		if err := b.ProcessFile(ctx, inputPath); err != nil {
			slog.Error("ingest failed", "error", err)
			b.Close()
			os.Exit(1)
		}
	}

	if err := b.Close(); err != nil {
		slog.Error("failed to finalize output files", "error", err)
		os.Exit(1)
	}

	slog.Info("next step: sort the partitions by (term, docID) and run the merger",
		"partitions", b.PartitionCount(),
	)
}

func parsePartSize(arg string) int {
	v, err := strconv.Atoi(arg)
	if err != nil || v < 1 {
		fmt.Fprintf(os.Stderr, "invalid part_size_gb %q, must be an integer >= 1\n", arg)
		os.Exit(1)
	}
	return v
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: indexer [flags] <input.tsv> <out_dir> [part_size_gb]
       indexer -kafka [flags] <out_dir> [part_size_gb]

Input lines are "externalID<TAB>content"; lines without a tab are skipped.

Flags:
`)
	flag.PrintDefaults()
}
