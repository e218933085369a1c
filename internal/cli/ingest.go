package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ForkIt369/ragpipe/internal/service"
)

var ingestConcurrency int

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a file or directory into the pipeline",
	Long: `Ingest documents: extract, chunk, embed, and index them.

A directory is walked recursively; Markdown and plain text files are
processed concurrently.

Examples:
  ragpipe ingest notes.md
  ragpipe ingest ./docs --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "documents processed in parallel")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		exitWithError("cannot access %s: %v", path, err)
	}

	a, err := getApp(true)
	if err != nil {
		return err
	}

	files, err := collectFiles(path, info)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No ingestable files found")
		return nil
	}

	fmt.Printf("Ingesting %d file(s)\n", len(files))

	var processed, failed atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(ingestConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			raw, err := os.ReadFile(file)
			if err != nil {
				failed.Add(1)
				fmt.Fprintf(os.Stderr, "  %s: %v\n", file, err)
				return nil
			}

			title := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			doc := service.NewDocument(title, filepath.Ext(file), raw)

			if err := a.docs.Process(ctx, doc, raw); err != nil {
				failed.Add(1)
				fmt.Fprintf(os.Stderr, "  %s: %v\n", file, err)
				return nil
			}

			n := processed.Add(1)
			fmt.Printf("  [%d/%d] %s (%d chunks, %s)\n",
				n, len(files), file, doc.ChunkCount, doc.ProcessingTime.Round(time.Millisecond))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Done: %d processed, %d failed\n", processed.Load(), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d file(s) failed", failed.Load())
	}
	return nil
}

// collectFiles expands a path into the list of ingestable files.
func collectFiles(path string, info os.FileInfo) ([]string, error) {
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".md", ".markdown", ".txt", ".text":
			files = append(files, p)
		}
		return nil
	})
	return files, err
}
