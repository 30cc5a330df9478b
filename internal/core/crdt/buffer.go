package crdt

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-collab/pkg/types"
)

// danglingEntry 等待依赖到达的操作
type danglingEntry struct {
	waitFor types.OperationID
	op      types.DocumentOperation
	addedAt time.Time
}

// danglingBuffer 悬挂操作缓冲
//
// 有界 FIFO：超出容量时丢弃最旧条目；expire 丢弃超时条目。
// 同一依赖可挂多个等待者（例如父元素未到时的一串子插入）。
type danglingBuffer struct {
	byDep   map[types.OperationID][]int // waitFor → entries 下标
	entries []danglingEntry             // 按加入顺序
	max     int
	timeout time.Duration
	clk     clock.Clock
}

func newDanglingBuffer(max int, timeout time.Duration, clk clock.Clock) *danglingBuffer {
	return &danglingBuffer{
		byDep:   make(map[types.OperationID][]int),
		max:     max,
		timeout: timeout,
		clk:     clk,
	}
}

// add 缓冲一个等待 waitFor 的操作
func (b *danglingBuffer) add(waitFor types.OperationID, op types.DocumentOperation) {
	// 去重：同一操作不重复缓冲
	for _, idx := range b.byDep[waitFor] {
		if idx >= 0 && b.entries[idx].op.Kind == op.Kind && b.entries[idx].op.ID == op.ID {
			return
		}
	}

	if b.len() >= b.max {
		b.dropOldest()
	}

	b.entries = append(b.entries, danglingEntry{
		waitFor: waitFor,
		op:      op,
		addedAt: b.clk.Now(),
	})
	b.byDep[waitFor] = append(b.byDep[waitFor], len(b.entries)-1)
}

// take 取出并移除所有等待 id 的操作（按加入顺序）
func (b *danglingBuffer) take(id types.OperationID) []types.DocumentOperation {
	idxs := b.byDep[id]
	if len(idxs) == 0 {
		return nil
	}
	delete(b.byDep, id)

	ops := make([]types.DocumentOperation, 0, len(idxs))
	for _, idx := range idxs {
		if idx >= 0 && idx < len(b.entries) && !b.entries[idx].op.ID.IsEmpty() {
			ops = append(ops, b.entries[idx].op)
			b.entries[idx] = danglingEntry{} // 标记已取出
		}
	}
	b.compact()
	return ops
}

// expire 移除并返回超时条目
func (b *danglingBuffer) expire() []types.DocumentOperation {
	if b.timeout <= 0 {
		return nil
	}
	cutoff := b.clk.Now().Add(-b.timeout)

	var expired []types.DocumentOperation
	for i := range b.entries {
		e := &b.entries[i]
		if !e.op.ID.IsEmpty() && e.addedAt.Before(cutoff) {
			expired = append(expired, e.op)
			*e = danglingEntry{}
		}
	}
	if len(expired) > 0 {
		b.compact()
	}
	return expired
}

// dropOldest 丢弃最旧的有效条目
func (b *danglingBuffer) dropOldest() {
	for i := range b.entries {
		if !b.entries[i].op.ID.IsEmpty() {
			b.entries[i] = danglingEntry{}
			b.compact()
			return
		}
	}
}

// len 返回有效条目数
func (b *danglingBuffer) len() int {
	n := 0
	for i := range b.entries {
		if !b.entries[i].op.ID.IsEmpty() {
			n++
		}
	}
	return n
}

// compact 重建 entries 与索引，清理空洞
func (b *danglingBuffer) compact() {
	live := b.entries[:0]
	for _, e := range b.entries {
		if !e.op.ID.IsEmpty() {
			live = append(live, e)
		}
	}
	b.entries = live

	b.byDep = make(map[types.OperationID][]int, len(b.entries))
	for i, e := range b.entries {
		b.byDep[e.waitFor] = append(b.byDep[e.waitFor], i)
	}
}
