package queue

import "context"

// Inspector exposes read-only queue state for operators.
type Inspector interface {
	Stats(ctx context.Context, queue string) (Stats, error)
	ListDead(ctx context.Context, queue string, limit int) ([]DeadTask, error)
}

var (
	_ Inspector          = (*MemoryStorage)(nil)
	_ Inspector          = (*RedisStorage)(nil)
	_ WorkerRepository   = (*MemoryStorage)(nil)
	_ WorkerRepository   = (*RedisStorage)(nil)
	_ EnqueuerRepository = (*MemoryStorage)(nil)
	_ EnqueuerRepository = (*RedisStorage)(nil)
)
