package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"moviesims/pkg/types"
)

// LocalExecutor accumulates pairs on goroutines in this process. Each worker
// owns a private PairTable; the tables are merged once every block is done.
// Cancellation is checked between blocks.
type LocalExecutor struct {
	Workers   int
	BlockSize int // usuarios por bloque; 0 = automático
}

// Accumulate implements Executor.
func (e LocalExecutor) Accumulate(ctx context.Context, users []types.UserRatings) (*PairTable, error) {
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	blocks := ChunkUsers(users, BlockSizeFor(len(users), workers, e.BlockSize))

	// Block i goes to worker i%workers: a given input always yields the same
	// partial tables merged in the same order.
	g, gctx := errgroup.WithContext(ctx)
	partials := make([]*PairTable, workers)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := NewPairTable()
			for i := w; i < len(blocks); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				local.AddUsers(blocks[i])
			}
			partials[w] = local
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge de todos los parciales en uno global
	global := NewPairTable()
	for _, p := range partials {
		global.Merge(p)
	}
	return global, nil
}

// BlockSizeFor picks a block size. An explicit size wins; otherwise users are
// spread over about 8 blocks per CPU, with at least 10 users per block.
func BlockSizeFor(nUsers, workers, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	targetBlocks := runtime.NumCPU() * 8
	if targetBlocks < workers {
		targetBlocks = workers
	}
	if targetBlocks < 16 {
		targetBlocks = 16
	}
	batch := (nUsers + targetBlocks - 1) / targetBlocks
	if batch < 10 {
		batch = 10
	}
	return batch
}

// ChunkUsers splits users into consecutive blocks of at most size.
func ChunkUsers(all []types.UserRatings, size int) [][]types.UserRatings {
	if size < 1 {
		size = 1
	}
	var out [][]types.UserRatings
	for i := 0; i < len(all); i += size {
		j := i + size
		if j > len(all) {
			j = len(all)
		}
		out = append(out, all[i:j])
	}
	return out
}
