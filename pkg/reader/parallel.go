package reader

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/comet/pkg/fieldparse"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/source"
	"github.com/ajitpratap0/comet/pkg/tape"
)

// minParallelCells is the work floor below which the fork-join overhead is
// not worth paying.
const minParallelCells = 5000

// shouldParallel decides whether the chunked coordinator runs.
func shouldParallel(pc *parseContext, workers int) bool {
	if pc.opts.Threaded == Off || pc.opts.Transpose || pc.limit > 0 {
		return false
	}
	if workers < 2 {
		return false
	}
	if pc.rowEstimate <= workers {
		return false
	}
	return pc.rowEstimate*pc.ncols >= minParallelCells
}

func workerCount(opts *Options) int {
	if opts.Workers > 0 {
		return opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// splitChunks divides [start,end) into n byte ranges aligned on row starts.
// Each boundary except the first advances forward to the next byte that
// begins a row with the expected field count. Returns ok=false when no such
// row start exists between a boundary and the end of the input, or when
// fewer than two chunks remain; the caller then parses single-threaded.
func splitChunks(data []byte, start, end, n, ncols int, fopts *fieldparse.Options) ([]int, bool) {
	size := (end - start) / n
	bounds := make([]int, 0, n+1)
	bounds = append(bounds, start)

	for i := 1; i < n; i++ {
		raw := start + i*size
		prev := bounds[len(bounds)-1]
		if raw <= prev {
			continue
		}

		aligned, ok := alignRowStart(data, raw, end, ncols, fopts)
		if !ok {
			return nil, false
		}
		if aligned >= end {
			break
		}
		if aligned > prev {
			bounds = append(bounds, aligned)
		}
	}
	bounds = append(bounds, end)
	return bounds, len(bounds) > 2
}

// alignRowStart advances from pos to the next offset that begins a valid
// row. Candidates are bytes following a newline; a candidate is accepted
// when scanning from it yields the expected column count. The search gives
// up at end.
func alignRowStart(data []byte, pos, end, ncols int, fopts *fieldparse.Options) (int, bool) {
	for p := pos; p < end; p++ {
		if data[p] != '\n' {
			continue
		}
		cand := p + 1
		if cand >= end {
			return end, true
		}
		if countFields(data[:end], cand, fopts) == ncols {
			return cand, true
		}
	}
	return 0, false
}

// parseParallel forks workers over aligned chunks, then merges their private
// state in worker order.
func parseParallel(ctx context.Context, pc *parseContext, buf *source.Buffer, bounds []int) (*chunkState, error) {
	n := len(bounds) - 1
	chunks := make([]*chunkState, n)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf.Prefetch(bounds[i], bounds[i+1])
			est := pc.rowEstimate/n + 1
			cs, err := parseChunk(pc, bounds[i], bounds[i+1], est)
			if err != nil {
				return err
			}
			chunks[i] = cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("parallel parse complete",
		zap.Int("workers", n),
		zap.Int("columns", pc.ncols))

	return mergeChunks(pc, chunks)
}

// mergeChunks concatenates worker results in index order. Pool maps union
// serially into worker 0's map with per-worker recode vectors; the ref
// rewrite and the tape copies then fan out in parallel, each worker owning a
// disjoint row range.
func mergeChunks(pc *parseContext, chunks []*chunkState) (*chunkState, error) {
	totalRows := 0
	offsets := make([]int, len(chunks))
	for i, cs := range chunks {
		offsets[i] = totalRows
		totalRows += cs.rows
	}

	merged := &chunkState{
		tapes:    make([]*tape.Tape, pc.ncols),
		sidecars: make([]*tape.Sidecar, pc.ncols),
		refmaps:  make([]*tape.RefMap, pc.ncols),
		rows:     totalRows,
	}

	for i, cs := range chunks {
		for _, w := range cs.warnings {
			w.Row += offsets[i]
			merged.warnings = append(merged.warnings, w)
		}
	}

	// Serial phase: string fallback fixups and pool map union.
	recodes := make([][][]uint32, pc.ncols) // col → worker → oldRef → newRef
	for col := 0; col < pc.ncols; col++ {
		final := pc.types.Load(col)

		if final.Base() == tape.String {
			// Workers that finished before the promotion carry flags-only
			// poslen slots; restore offsets from their sidecars.
			for _, cs := range chunks {
				cs.sidecars[col].CopyIntoTape(cs.tapes[col])
			}
		}

		if final.Base() == tape.Pool {
			base := chunks[0].refmaps[col]
			recodes[col] = make([][]uint32, len(chunks))
			for wi := 1; wi < len(chunks); wi++ {
				rm := chunks[wi].refmaps[col]
				keys := rm.Flatten()
				recode := make([]uint32, len(keys)+1)
				for oldRef, key := range keys {
					recode[oldRef+1] = base.Ref([]byte(key))
				}
				recodes[col][wi] = recode
			}
			merged.refmaps[col] = base
		}

		merged.tapes[col] = tape.NewTapeWithRows(totalRows)
		merged.sidecars[col] = tape.NewSidecar(0)
	}

	// Parallel phase: recode refs and copy slices into the master tape.
	var g errgroup.Group
	for wi := range chunks {
		wi := wi
		g.Go(func() error {
			cs := chunks[wi]
			for col := 0; col < pc.ncols; col++ {
				if wi > 0 && recodes[col] != nil && recodes[col][wi] != nil {
					cs.tapes[col].RecodeRefs(recodes[col][wi])
				}
				merged.tapes[col].CopyAt(offsets[wi], cs.tapes[col])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
