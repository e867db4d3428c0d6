package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/source"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// ParseFile loads src and parses it into a columnar File. src may be a path
// string, a []byte, an io.Reader, or a *exec.Cmd whose stdout is the input.
// Configuration errors surface before any input is read.
func ParseFile(ctx context.Context, src interface{}, opts *Options) (*File, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.fill()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	buf, err := source.Load(ctx, src, &source.Options{
		UseMmap:    opts.UseMmap,
		FooterSkip: opts.FooterSkip,
		OpenQuote:  opts.OpenQuote,
		CloseQuote: opts.CloseQuote,
		Escape:     opts.Escape,
	})
	if err != nil {
		return nil, err
	}

	f, err := parseBuffer(ctx, buf, opts)
	if err != nil {
		buf.Close()
		return nil, err
	}
	return f, nil
}

func parseBuffer(ctx context.Context, buf *source.Buffer, opts *Options) (*File, error) {
	if opts.Transpose {
		cs, pc, names, err := parseTransposed(buf, opts)
		if err != nil {
			return nil, err
		}
		return finalize(buf, pc, cs, names), nil
	}

	lay, err := resolveLayout(buf, opts)
	if err != nil {
		return nil, err
	}
	ncols := len(lay.names)

	pc := &parseContext{
		data:          buf.Data,
		fopts:         lay.fopts,
		opts:          opts,
		types:         tape.NewAtomicTypes(ncols),
		ncols:         ncols,
		rowEstimate:   lay.rowEstimate,
		poolThreshold: opts.Pool,
		pooling:       opts.Pool > 0,
		limit:         opts.Limit,
	}
	pins, err := opts.pinnedTypes(lay.names)
	if err != nil {
		return nil, err
	}
	for col, pin := range pins {
		if pin != 0 {
			pc.types.Store(col, pin)
		}
	}
	pc.rewrites, err = opts.typeRewrites()
	if err != nil {
		return nil, err
	}

	cs, err := runParse(ctx, pc, buf, lay)
	if err != nil {
		return nil, err
	}
	return finalize(buf, pc, cs, lay.names), nil
}

// runParse dispatches between the single-threaded row loop and the chunked
// coordinator. An unalignable chunk boundary drops back to single-threaded.
func runParse(ctx context.Context, pc *parseContext, buf *source.Buffer, lay *layout) (*chunkState, error) {
	workers := workerCount(pc.opts)
	if shouldParallel(pc, workers) {
		bounds, ok := splitChunks(buf.Data, lay.dataStart, buf.End, workers, pc.ncols, pc.fopts)
		if ok {
			return parseParallel(ctx, pc, buf, bounds)
		}
		logger.Debug("chunk alignment failed, parsing single-threaded",
			zap.String("source", buf.Name))
	}
	return parseChunk(pc, lay.dataStart, buf.End, pc.rowEstimate)
}

// finalize assembles the File: final type vector, flattened pools, and the
// retained buffer that string cells slice into.
func finalize(buf *source.Buffer, pc *parseContext, cs *chunkState, names []string) *File {
	types := make([]tape.TypeCode, pc.ncols)
	refs := make([][]string, pc.ncols)
	for col := 0; col < pc.ncols; col++ {
		types[col] = pc.types.Load(col)
		if types[col].Base() == tape.Pool && cs.refmaps[col] != nil {
			refs[col] = cs.refmaps[col].Flatten()
		}
	}

	f := &File{
		names:    names,
		types:    types,
		tapes:    cs.tapes,
		refs:     refs,
		rows:     cs.rows,
		data:     buf.Data,
		escape:   pc.fopts.Escape,
		buf:      buf,
		warnings: cs.warnings,
	}

	if len(cs.warnings) > 0 && !pc.opts.SilenceWarnings {
		logger.Warn("parse completed with warnings",
			zap.String("source", buf.Name),
			zap.Int("warnings", len(cs.warnings)))
	}
	logger.Debug("parse complete",
		zap.String("source", buf.Name),
		zap.Int("rows", f.rows),
		zap.Int("columns", len(names)))
	return f
}
