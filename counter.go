package tfidf

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
)

// ErrEmptyCorpus is returned when the inputs contain no documents
var ErrEmptyCorpus = errors.New("empty corpus")

const (
	maxConcurrentCounts = 16
	maxDocumentSize     = 64 * 1024 * 1024
)

// CountDocuments returns the number of documents, one per line, in the
// files matched by inputs. Files are read concurrently.
func CountDocuments(ctx context.Context, fs corfs.FileSystem, inputs []string) (int64, error) {
	files, err := corfs.ListInputs(fs, inputs)
	if err != nil {
		return 0, err
	}

	var numDocs int64
	sem := semaphore.NewWeighted(maxConcurrentCounts)
	g, gctx := errgroup.WithContext(ctx)
	for _, file := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		name := file.Name
		g.Go(func() error {
			defer sem.Release(1)
			n, err := countLines(gctx, fs, name)
			if err != nil {
				return fmt.Errorf("counting documents in %s: %w", name, err)
			}
			log.Debugf("%s holds %d documents", name, n)
			atomic.AddInt64(&numDocs, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if numDocs == 0 {
		return 0, fmt.Errorf("%w: no documents in %v", ErrEmptyCorpus, inputs)
	}
	return numDocs, nil
}

func countLines(ctx context.Context, fs corfs.FileSystem, name string) (int64, error) {
	reader, err := fs.OpenReader(name, 0)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	var lines int64
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxDocumentSize)
	for scanner.Scan() {
		lines++
		if lines%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
	}
	return lines, scanner.Err()
}

// prepareNumDocs counts the corpus on the driver and hands the result to
// every reduce task.
func prepareNumDocs(ctx context.Context, fs corfs.FileSystem, inputs []string) (map[string]string, error) {
	numDocs, err := CountDocuments(ctx, fs, inputs)
	if err != nil {
		return nil, err
	}
	log.Infof("Corpus holds %d documents", numDocs)
	return map[string]string{NumDocKey: fmt.Sprint(numDocs)}, nil
}
