package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/util/logger"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/transport"
	"github.com/dep2p/go-collab/pkg/types"
)

var log = logger.Logger("core/sync")

// OperationHandler 入站操作处理器
//
// 由编排器注册；去重之后每个入站操作恰好回调一次。
type OperationHandler func(from string, documentID uuid.UUID, op types.DocumentOperation)

// seenKey 入站去重键
type seenKey struct {
	doc  uuid.UUID
	id   types.OperationID
	kind types.OperationKind
}

// Service 对等同步层实现
type Service struct {
	cfg    config.SyncConfig
	direct transport.Sender
	relay  relayif.Client

	handler   OperationHandler
	handlerMu stdsync.RWMutex

	// mu 保护 peers、connected 与 queue；
	// 绝不跨网络调用持有。
	mu        stdsync.RWMutex
	peers     map[uuid.UUID]map[string]struct{}
	connected bool
	queue     *opQueue

	seen *lru.Cache[seenKey, struct{}]

	closed int32
}

// NewService 创建同步层
func NewService(cfg config.SyncConfig, direct transport.Sender, relay relayif.Client) (*Service, error) {
	seen, err := lru.New[seenKey, struct{}](cfg.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("sync: seen cache: %w", err)
	}
	return &Service{
		cfg:    cfg,
		direct: direct,
		relay:  relay,
		peers:  make(map[uuid.UUID]map[string]struct{}),
		queue:  newOpQueue(cfg.MaxQueuedOps),
		seen:   seen,
	}, nil
}

// SetOperationHandler 注册入站操作处理器
func (s *Service) SetOperationHandler(h OperationHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// ============================================================================
//                              文档与对端管理
// ============================================================================

// RegisterDocument 注册文档会话
func (s *Service) RegisterDocument(documentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[documentID]; !ok {
		s.peers[documentID] = make(map[string]struct{})
	}
}

// UnregisterDocument 注销文档会话
func (s *Service) UnregisterDocument(documentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, documentID)
}

// AddPeer 把对端加入文档的连接集合
func (s *Service) AddPeer(documentID uuid.UUID, peerAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.peers[documentID]
	if !ok {
		return ErrDocumentNotRegistered
	}
	set[peerAddr] = struct{}{}
	return nil
}

// RemovePeer 把对端移出文档的连接集合
func (s *Service) RemovePeer(documentID uuid.UUID, peerAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.peers[documentID]; ok {
		delete(set, peerAddr)
	}
}

// Peers 返回文档当前对端列表快照
func (s *Service) Peers(documentID uuid.UUID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.peers[documentID]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// ============================================================================
//                              连通性
// ============================================================================

// SetConnected 显式设置网络连通状态
//
// 由编排器驱动，不从网络事件推断；恢复连通不隐式冲刷队列。
func (s *Service) SetConnected(connected bool) {
	s.mu.Lock()
	prev := s.connected
	s.connected = connected
	s.mu.Unlock()
	if prev != connected {
		log.Info("network connectivity changed", "connected", connected)
	}
}

// Connected 返回当前连通状态
func (s *Service) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ============================================================================
//                              出站路径
// ============================================================================

// BroadcastOperation 把本地操作广播到文档的全部对端
//
// 离线时入队立即返回（调用方的本地编辑是乐观成功的）；
// 在线时编码一次、并发扇出，任一对端直连与中继都失败时
// 整条操作重新入队等待下次冲刷。
func (s *Service) BroadcastOperation(ctx context.Context, documentID uuid.UUID, op types.DocumentOperation) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}

	s.mu.RLock()
	_, registered := s.peers[documentID]
	connected := s.connected
	s.mu.RUnlock()
	if !registered {
		return ErrDocumentNotRegistered
	}

	// 自己的操作进去重缓存，对端回声不会二次上抛
	s.seen.Add(seenKey{doc: documentID, id: op.ID, kind: op.Kind}, struct{}{})

	if !connected {
		s.enqueue(queuedOp{documentID: documentID, op: op})
		return nil
	}

	if err := s.deliver(ctx, documentID, op); err != nil {
		log.Warn("broadcast delivery failed, requeued",
			"doc", documentID,
			"op", op.ID,
			"err", err)
		s.enqueue(queuedOp{documentID: documentID, op: op, attempts: 1})
	}
	return nil
}

// deliver 编码并向全部对端扇出一条操作
//
// 单个对端：直连失败回退中继；全部对端至少一条路径成功
// 才算送达，否则返回错误由调用方重排队。
func (s *Service) deliver(ctx context.Context, documentID uuid.UUID, op types.DocumentOperation) error {
	frame, err := EncodeOperation(documentID, op)
	if err != nil {
		return err
	}

	peers := s.Peers(documentID)
	if len(peers) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			return s.sendToPeer(gctx, documentID, peer, frame)
		})
	}
	return g.Wait()
}

// sendToPeer 投递到单个对端：直连优先，失败走中继
func (s *Service) sendToPeer(ctx context.Context, documentID uuid.UUID, peerAddr string, frame []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	directErr := s.direct.Send(sendCtx, peerAddr, frame)
	if directErr == nil {
		return nil
	}
	log.Debug("direct send failed, trying relay",
		"peer", peerAddr,
		"err", directErr)

	if err := s.sendViaRelay(sendCtx, documentID, peerAddr, frame); err != nil {
		return fmt.Errorf("%w: direct (%v) and relay (%v) to %s",
			transport.ErrTransport, directErr, err, peerAddr)
	}
	return nil
}

// sendViaRelay 中继回退路径
//
// 分配是惰性的：首次需要时（或过期后）才向服务器申请。
func (s *Service) sendViaRelay(ctx context.Context, documentID uuid.UUID, peerAddr string, frame []byte) error {
	if !s.relay.IsAllocationValid(documentID) {
		if _, err := s.relay.Allocate(ctx, documentID); err != nil {
			return err
		}
	}
	if err := s.relay.CreatePermission(documentID, peerAddr); err != nil {
		return err
	}
	return s.relay.SendData(ctx, documentID, peerAddr, frame)
}

func (s *Service) enqueue(e queuedOp) {
	s.mu.Lock()
	overflowed := s.queue.push(e)
	qlen := s.queue.len()
	s.mu.Unlock()
	if overflowed {
		log.Warn("offline queue overflow", "len", qlen, "err", ErrQueueOverflow)
	}
}

// ProcessQueuedOperations 按原始顺序冲刷离线队列
//
// 返回成功送出的条目数。遇到第一个失败即停止，
// 失败条目（若未超出重试上限）与其后的条目按原序留在队列。
func (s *Service) ProcessQueuedOperations(ctx context.Context) (int, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return 0, ErrServiceClosed
	}
	if !s.Connected() {
		return 0, nil
	}

	s.mu.Lock()
	pending := s.queue.popAll()
	s.mu.Unlock()

	flushed := 0
	for i, entry := range pending {
		if err := s.deliver(ctx, entry.documentID, entry.op); err != nil {
			rest := make([]queuedOp, 0, len(pending)-i)
			entry.attempts++
			if entry.attempts < s.cfg.MaxAttempts {
				rest = append(rest, entry)
			} else {
				log.Warn("operation dropped after max attempts",
					"doc", entry.documentID,
					"op", entry.op.ID,
					"attempts", entry.attempts)
			}
			rest = append(rest, pending[i+1:]...)

			s.mu.Lock()
			s.queue.requeueFront(rest)
			s.mu.Unlock()
			return flushed, fmt.Errorf("sync: flush stopped at %s: %w", entry.op.ID, err)
		}
		flushed++
	}

	if flushed > 0 {
		log.Info("offline queue flushed", "count", flushed)
	}
	return flushed, nil
}

// QueueLen 返回离线队列当前长度
func (s *Service) QueueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.len()
}

// OverflowCount 返回累计溢出丢弃条数
func (s *Service) OverflowCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.overflowCount()
}

// ============================================================================
//                              入站路径
// ============================================================================

// HandleIncoming 处理来自对端的入站帧
//
// 解码 → LRU 去重 → 回调处理器。重复帧静默丢弃；
// 未注册文档的帧丢弃并返回 ErrDocumentNotRegistered。
func (s *Service) HandleIncoming(from string, data []byte) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}

	documentID, op, err := DecodeOperation(data)
	if err != nil {
		log.Warn("dropping malformed inbound frame", "from", from, "err", err)
		return err
	}

	s.mu.RLock()
	_, registered := s.peers[documentID]
	s.mu.RUnlock()
	if !registered {
		log.Debug("inbound frame for unregistered document",
			"from", from,
			"doc", documentID)
		return ErrDocumentNotRegistered
	}

	key := seenKey{doc: documentID, id: op.ID, kind: op.Kind}
	if _, dup := s.seen.Get(key); dup {
		return nil
	}
	s.seen.Add(key, struct{}{})

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		log.Warn("inbound operation with no handler registered", "doc", documentID)
		return nil
	}
	handler(from, documentID, op)
	return nil
}

// Close 关闭同步层
func (s *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.mu.Lock()
	dropped := s.queue.len()
	s.mu.Unlock()
	if dropped > 0 {
		log.Warn("closing with queued operations", "count", dropped)
	}
	log.Info("sync service closed")
	return nil
}
