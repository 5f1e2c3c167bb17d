package driver

import "sync/atomic"

// shardQueue hands out shard paths to workers. Pop is the only shared
// mutation: an atomic cursor over an immutable slice.
type shardQueue struct {
	paths []string
	next  atomic.Int64
}

func newShardQueue(paths []string) *shardQueue {
	return &shardQueue{paths: paths}
}

// Pop removes and returns the next path, or reports false once the queue
// is empty.
func (q *shardQueue) Pop() (string, bool) {
	i := q.next.Add(1) - 1
	if i >= int64(len(q.paths)) {
		return "", false
	}
	return q.paths[i], true
}

// Remaining is the number of paths not yet handed out.
func (q *shardQueue) Remaining() int {
	n := int64(len(q.paths)) - q.next.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Len is the total number of paths.
func (q *shardQueue) Len() int { return len(q.paths) }
