// Package engine drives a full export run: it pages through a resource,
// binds each page into typed rows, and flushes one columnar batch per page.
// Pages are prefetched inside a bounded window but always appended in page
// order, so the output row order matches the service's.
package engine

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/logger"
	"github.com/tabfetch/tabfetch/pkg/query"
	"github.com/tabfetch/tabfetch/pkg/record"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Fetcher retrieves one page of raw records. transport.Client implements
// it; tests substitute fakes.
type Fetcher interface {
	FetchPage(ctx context.Context, resource string, params []query.Param) ([]byte, error)
}

// Target describes where and how a run writes its output.
type Target struct {
	Backend columnar.Backend
	Options columnar.Options
	Out     io.Writer
	// Flatten explodes association elements into prefixed scalar columns,
	// one output row per element combination.
	Flatten bool
}

// RunSummary reports what a completed run produced.
type RunSummary struct {
	RowsWritten    int64
	BatchesFlushed int64
	BytesWritten   int64
	Elapsed        time.Duration
}

// Engine pages through resources with a bounded prefetch window.
type Engine struct {
	fetcher  Fetcher
	pageSize int
	window   int
	log      *zap.Logger
}

// New builds an engine. pageSize is the records requested per page, window
// the number of pages that may be in flight at once.
func New(fetcher Fetcher, pageSize, window int) (*Engine, error) {
	if pageSize <= 0 {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "page size must be positive").
			WithDetail("page_size", pageSize)
	}
	if window < 1 {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "prefetch window must be at least 1").
			WithDetail("window", window)
	}
	return &Engine{
		fetcher:  fetcher,
		pageSize: pageSize,
		window:   window,
		log:      logger.Get().Named("engine"),
	}, nil
}

type pageJob struct {
	offset int
	count  int
	ch     chan pageResult
}

type pageResult struct {
	body []byte
	err  error
}

// Run exports one resource. The descriptor's selection narrows the output
// schema, its limit caps the records fetched. Cancellation takes effect at
// page boundaries, so every batch already flushed stays valid.
func (e *Engine) Run(ctx context.Context, resource string, s *schema.Schema, desc *query.Descriptor, target Target) (RunSummary, error) {
	var summary RunSummary
	start := time.Now()

	if err := columnar.Validate(target.Backend, target.Options.Format); err != nil {
		return summary, err
	}

	pageSchema := s
	if sel := desc.SelectedFields(); len(sel) > 0 {
		projected, err := s.Project(sel)
		if err != nil {
			return summary, err
		}
		pageSchema = projected
	}

	outSchema := pageSchema
	var fl *columnar.Flattener
	if target.Flatten {
		f, err := columnar.NewFlattener(pageSchema)
		if err != nil {
			return summary, err
		}
		fl = f
		outSchema = f.Schema()
	}

	counting := &countingWriter{w: target.Out}
	w, err := target.Backend.NewWriter(counting, outSchema, target.Options)
	if err != nil {
		return summary, err
	}

	runErr := e.pageLoop(ctx, resource, pageSchema, desc, w, fl, &summary)

	if cerr := w.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	summary.BytesWritten = counting.n
	summary.Elapsed = time.Since(start)

	if runErr != nil {
		return summary, runErr
	}
	e.log.Info("run complete",
		zap.String("resource", resource),
		zap.Int64("rows", summary.RowsWritten),
		zap.Int64("batches", summary.BatchesFlushed),
		zap.Int64("bytes", summary.BytesWritten),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (e *Engine) pageLoop(ctx context.Context, resource string, pageSchema *schema.Schema, desc *query.Descriptor, w columnar.Writer, fl *columnar.Flattener, summary *RunSummary) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	base := 0
	wanted := -1
	if lim := desc.Limit(); lim != nil {
		base = lim.Offset
		wanted = lim.Count
	}

	var queue []pageJob
	scheduled := 0

	schedule := func() {
		for len(queue) < e.window {
			count := e.pageSize
			if wanted >= 0 {
				left := wanted - scheduled
				if left <= 0 {
					return
				}
				if left < count {
					count = left
				}
			}
			job := pageJob{offset: base + scheduled, count: count, ch: make(chan pageResult, 1)}
			scheduled += count
			queue = append(queue, job)
			go func(job pageJob) {
				body, err := e.fetcher.FetchPage(runCtx, resource, desc.WithWindow(job.offset, job.count).Params())
				job.ch <- pageResult{body: body, err: err}
			}(job)
		}
	}

	for {
		schedule()
		if len(queue) == 0 {
			return nil
		}
		head := queue[0]
		queue = queue[1:]

		var res pageResult
		select {
		case <-ctx.Done():
			return taberrors.Wrap(ctx.Err(), taberrors.ErrorTypeTransport, "run canceled").
				WithDetail("resource", resource)
		case res = <-head.ch:
		}
		if res.err != nil {
			return res.err
		}

		trees, err := record.ParsePage(res.body, pageSchema)
		if err != nil {
			return err
		}
		rows, err := columnar.BindBatch(trees, pageSchema)
		if err != nil {
			return err
		}
		if fl != nil {
			rows = fl.ExplodeBatch(rows)
		}

		if len(rows) > 0 {
			if err := w.WriteBatch(rows); err != nil {
				return err
			}
			summary.RowsWritten += int64(len(rows))
			summary.BatchesFlushed++
			e.log.Debug("page flushed",
				zap.String("resource", resource),
				zap.Int("offset", head.offset),
				zap.Int("rows", len(rows)))
		}

		if len(trees) < head.count {
			// Short page: the resource is exhausted, speculative fetches
			// beyond it are discarded.
			cancel()
			return nil
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
