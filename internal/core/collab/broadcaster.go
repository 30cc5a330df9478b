package collab

import (
	"context"
	stdsync "sync"

	collabif "github.com/dep2p/go-collab/pkg/interfaces/collab"
	"github.com/dep2p/go-collab/pkg/types"
)

// subscriberBuffer 单个订阅者的缓冲深度
//
// 缓冲满时丢弃消息而不是阻塞发布方：慢消费者不能拖慢
// 文档的编辑路径。
const subscriberBuffer = 64

// broadcaster 单个文档的操作发布器
//
// 订阅从订阅时刻开始，不回放历史。
type broadcaster struct {
	mu     stdsync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint64]*subscription)}
}

// subscribe 建立新订阅
func (b *broadcaster) subscribe() (*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrSubscriptionClosed
	}

	b.nextID++
	sub := &subscription{
		id:     b.nextID,
		ch:     make(chan types.DocumentOperation, subscriberBuffer),
		done:   make(chan struct{}),
		parent: b,
	}
	b.subs[sub.id] = sub
	return sub, nil
}

// publish 向全部订阅者投递一条操作
func (b *broadcaster) publish(op types.DocumentOperation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- op:
		default:
			// 慢消费者：丢弃而不是阻塞
			sub.dropped++
		}
	}
}

// remove 注销订阅（Cancel 路径）
func (b *broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// close 关闭发布器并终止全部订阅
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.terminate()
		delete(b.subs, id)
	}
}

// subscription 一路订阅流
type subscription struct {
	id      uint64
	ch      chan types.DocumentOperation
	done    chan struct{}
	parent  *broadcaster
	once    stdsync.Once
	dropped uint64
}

var _ collabif.OperationStream = (*subscription)(nil)

// Next 实现 collab.OperationStream
func (s *subscription) Next(ctx context.Context) (types.DocumentOperation, error) {
	// 已缓冲的消息先于关闭信号交付
	select {
	case op := <-s.ch:
		return op, nil
	default:
	}

	select {
	case op := <-s.ch:
		return op, nil
	case <-s.done:
		return types.DocumentOperation{}, ErrSubscriptionClosed
	case <-ctx.Done():
		return types.DocumentOperation{}, ctx.Err()
	}
}

// Cancel 实现 collab.OperationStream
func (s *subscription) Cancel() {
	s.parent.remove(s.id)
	s.terminate()
}

// terminate 关闭订阅（幂等）
func (s *subscription) terminate() {
	s.once.Do(func() {
		close(s.done)
	})
}
