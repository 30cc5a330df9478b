package sync

import (
	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// queuedOp 离线队列条目
type queuedOp struct {
	documentID uuid.UUID
	op         types.DocumentOperation
	attempts   int
}

// opQueue 有界 FIFO 离线队列
//
// 到达上限时丢弃最旧条目（保新弃旧：最近的编辑更可能
// 仍有对端在等），并把溢出计数暴露给观测。
// 非并发安全，由 Service 的锁保护。
type opQueue struct {
	entries  []queuedOp
	max      int
	overflow uint64
}

func newOpQueue(max int) *opQueue {
	return &opQueue{max: max}
}

// push 入队；返回是否发生了溢出丢弃
func (q *opQueue) push(e queuedOp) bool {
	overflowed := false
	for len(q.entries) >= q.max {
		q.entries = q.entries[1:]
		q.overflow++
		overflowed = true
	}
	q.entries = append(q.entries, e)
	return overflowed
}

// popAll 取出全部条目并清空队列
//
// 冲刷失败的残余由调用方按原始顺序放回。
func (q *opQueue) popAll() []queuedOp {
	out := q.entries
	q.entries = nil
	return out
}

// requeueFront 把未送出的条目按原始顺序放回队首
func (q *opQueue) requeueFront(rest []queuedOp) {
	q.entries = append(rest, q.entries...)
	for len(q.entries) > q.max {
		q.entries = q.entries[1:]
		q.overflow++
	}
}

func (q *opQueue) len() int { return len(q.entries) }

func (q *opQueue) overflowCount() uint64 { return q.overflow }
