// The querier command loads an index and serves an interactive query REPL
// with BM25-ranked results and highlighted snippets.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yuqi-zhai/passagerank/internal/bm25"
	"github.com/yuqi-zhai/passagerank/internal/index"
	"github.com/yuqi-zhai/passagerank/internal/search"
	"github.com/yuqi-zhai/passagerank/pkg/logger"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}
	indexDir := os.Args[1]
	docTablePath := os.Args[2]

	defaultMode := search.ModeOR
	defaultK := 10
	k1, b := 0.9, 0.4

	// Options follow the positional arguments, --key=value style.
	for _, arg := range os.Args[3:] {
		switch {
		case strings.HasPrefix(arg, "--mode="):
			defaultMode = search.ParseMode(arg[len("--mode="):])
		case strings.HasPrefix(arg, "--k="):
			if v, err := strconv.Atoi(arg[len("--k="):]); err == nil && v >= 1 {
				defaultK = v
			}
		case strings.HasPrefix(arg, "--k1="):
			if v, err := strconv.ParseFloat(arg[len("--k1="):], 64); err == nil && v >= 0 {
				k1 = v
			}
		case strings.HasPrefix(arg, "--b="):
			if v, err := strconv.ParseFloat(arg[len("--b="):], 64); err == nil && v >= 0 && v <= 1 {
				b = v
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown option: %s\n", arg)
			usage()
			os.Exit(1)
		}
	}

	logger.Setup("warn", "text")

	fmt.Println("Loading index...")
	reader, err := index.Open(indexDir, docTablePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load index: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	evaluator := search.NewEvaluator(reader, bm25.Params{K1: k1, B: b})

	fmt.Printf("Index loaded: %d terms, %d documents, avgdl %.2f\n",
		reader.Lexicon.Len(), reader.Stats.DocCount, reader.Stats.AvgDocLength)
	fmt.Printf("Defaults: mode=%s k=%d k1=%g b=%g\n\n", defaultMode, defaultK, k1, b)
	fmt.Println("Enter queries, one per line.")
	fmt.Println("  /and <query>     run one query conjunctively")
	fmt.Println("  /or <query>      run one query disjunctively")
	fmt.Println("  /bm25 <k1> <b>   update BM25 parameters")
	fmt.Println("  /quit            exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		mode := defaultMode
		query := line
		switch {
		case strings.HasPrefix(line, "/and "):
			mode = search.ModeAND
			query = line[len("/and "):]
		case strings.HasPrefix(line, "/or "):
			mode = search.ModeOR
			query = line[len("/or "):]
		case strings.HasPrefix(line, "/bm25 "):
			fields := strings.Fields(line[len("/bm25 "):])
			if len(fields) != 2 {
				fmt.Println("usage: /bm25 <k1> <b>")
				continue
			}
			newK1, err1 := strconv.ParseFloat(fields[0], 64)
			newB, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 != nil || err2 != nil || newK1 < 0 || newB < 0 || newB > 1 {
				fmt.Println("k1 must be >= 0 and b must be in [0, 1]")
				continue
			}
			evaluator.SetParams(newK1, newB)
			fmt.Printf("BM25 parameters updated: k1=%g b=%g\n\n", newK1, newB)
			continue
		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command: %s\n\n", line)
			continue
		}
		if strings.TrimSpace(query) == "" {
			continue
		}

		runQuery(reader, evaluator, query, mode, defaultK)
	}
	fmt.Println("\nGoodbye!")
}

func runQuery(reader *index.Reader, evaluator *search.Evaluator, query string, mode search.Mode, k int) {
	terms := search.QueryTerms(query)
	fmt.Printf("Query terms: %s (%s mode)\n", strings.Join(terms, ", "), strings.ToUpper(mode.String()))

	start := time.Now()
	results, err := evaluator.Evaluate(context.Background(), query, mode, k)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("query failed: %v\n\n", err)
		return
	}

	fmt.Printf("\nTop %d results (in %d ms):\n", len(results), elapsed.Milliseconds())
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%5s  %10s  %10s  %s\n", "Rank", "DocID", "Score", "Document")
	fmt.Println(strings.Repeat("-", 80))

	for i, res := range results {
		doc := reader.Docs.ExternalID(res.DocID)
		fmt.Printf("%5d  %10d  %10.4f  %s\n", i+1, res.DocID, res.Score, doc)
		if reader.Content != nil {
			if content, err := reader.Content.Fetch(res.DocID); err == nil {
				snippet := search.Snippet(content, terms)
				fmt.Printf("%31s%s\n", "", search.Highlight(snippet, terms))
			}
		}
	}
	if len(results) == 0 {
		fmt.Println("(No results found)")
	}
	fmt.Println()
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: querier <index_dir> <doc_table_path> [options]

Options:
  --mode=and|or    Query mode (default: or)
  --k=N            Number of results (default: 10)
  --k1=X           BM25 k1 parameter (default: 0.9)
  --b=X            BM25 b parameter (default: 0.4)

Interactive commands:
  /and <query>     Run this query in AND mode
  /or <query>      Run this query in OR mode
  /bm25 <k1> <b>   Update BM25 parameters
  /quit or /exit   Exit
`)
}
