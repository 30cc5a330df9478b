package collab

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/core/crdt"
	syncsvc "github.com/dep2p/go-collab/internal/core/sync"
	"github.com/dep2p/go-collab/internal/util/logger"
	collabif "github.com/dep2p/go-collab/pkg/interfaces/collab"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/types"
)

var log = logger.Logger("core/collab")

// session 单个活跃文档的协作会话
type session struct {
	document types.Document

	// mu 独占保护 engine；引擎本身非并发安全
	mu     stdsync.Mutex
	engine *crdt.Engine

	// versionMu 串行化版本创建的读-改-写
	//
	// 版本号 = 最新号 + 1 横跨两次仓库调用，并发创建会
	// 读到同一个最新号并相互覆盖。只保护这条路径，不与
	// mu 嵌套。
	versionMu stdsync.Mutex

	broadcaster *broadcaster
}

// Service 协作编排器实现
type Service struct {
	cfg    *config.Config
	repo   repository.DocumentRepository
	syncer *syncsvc.Service
	relay  relayif.Client
	clk    clock.Clock

	// sessionsMu 只保护 sessions 表，不跨仓库或网络调用持有
	sessionsMu stdsync.RWMutex
	sessions   map[uuid.UUID]*session

	closed int32
}

// NewService 创建编排器
//
// 创建即把自己注册为同步层的入站操作处理器。
func NewService(cfg *config.Config, repo repository.DocumentRepository, syncer *syncsvc.Service, relay relayif.Client, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	s := &Service{
		cfg:      cfg,
		repo:     repo,
		syncer:   syncer,
		relay:    relay,
		clk:      clk,
		sessions: make(map[uuid.UUID]*session),
	}
	syncer.SetOperationHandler(s.handleRemote)
	return s
}

var _ collabif.Service = (*Service)(nil)

// ============================================================================
//                              会话生命周期
// ============================================================================

// InitializeDocument 实现 collab.Service
func (s *Service) InitializeDocument(ctx context.Context, documentID, userID uuid.UUID) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}

	s.sessionsMu.RLock()
	_, active := s.sessions[documentID]
	s.sessionsMu.RUnlock()
	if active {
		return nil
	}

	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return err
	}

	// 基线：把持久化内容转换为确定性的初始 Insert 序列。
	// 所有节点对同一文档生成完全相同的基线操作，基线元素的
	// ID 在副本之间一致，后续编辑可以直接引用它们。
	engine := crdt.NewEngine(s.cfg.PeerID, s.cfg.CRDT, s.clk)
	for _, op := range crdt.OpsFromContent(documentID, doc.Content) {
		if err := engine.Apply(op); err != nil {
			return fmt.Errorf("collab: baseline apply: %w", err)
		}
	}

	sess := &session{
		document:    doc,
		engine:      engine,
		broadcaster: newBroadcaster(),
	}

	s.sessionsMu.Lock()
	if _, raced := s.sessions[documentID]; raced {
		s.sessionsMu.Unlock()
		return nil
	}
	s.sessions[documentID] = sess
	s.sessionsMu.Unlock()

	s.syncer.RegisterDocument(documentID)
	s.relay.Prepare(documentID)

	log.Info("document session initialized",
		"doc", documentID,
		"user", userID,
		"baseline_elements", engine.Len())
	return nil
}

// CloseDocument 实现 collab.Service
func (s *Service) CloseDocument(documentID uuid.UUID) error {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[documentID]
	if !ok {
		s.sessionsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	delete(s.sessions, documentID)
	s.sessionsMu.Unlock()

	sess.broadcaster.close()
	s.syncer.UnregisterDocument(documentID)
	s.relay.Release(documentID)
	log.Info("document session closed", "doc", documentID)
	return nil
}

func (s *Service) session(documentID uuid.UUID) (*session, error) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	sess, ok := s.sessions[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return sess, nil
}

// ============================================================================
//                              操作路径
// ============================================================================

// ApplyOperation 实现 collab.Service
//
// 顺序固定：引擎 → 本地发布 → 网络传播。
func (s *Service) ApplyOperation(ctx context.Context, documentID uuid.UUID, op types.DocumentOperation) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}
	sess, err := s.session(documentID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	err = sess.engine.Apply(op)
	sess.mu.Unlock()
	if err != nil {
		return err
	}

	sess.broadcaster.publish(op)

	if err := s.syncer.BroadcastOperation(ctx, documentID, op); err != nil {
		// 本地状态已经一致，网络层失败只记录
		log.Warn("network propagation failed", "doc", documentID, "op", op.ID, "err", err)
	}
	return nil
}

// InsertElement 实现 collab.Service
func (s *Service) InsertElement(ctx context.Context, documentID uuid.UUID, parent types.OperationID, position int, value string) (types.DocumentOperation, error) {
	return s.localEdit(ctx, documentID, func(e *crdt.Engine) (types.DocumentOperation, error) {
		return e.LocalInsert(parent, position, value)
	})
}

// DeleteElement 实现 collab.Service
func (s *Service) DeleteElement(ctx context.Context, documentID uuid.UUID, id types.OperationID) (types.DocumentOperation, error) {
	return s.localEdit(ctx, documentID, func(e *crdt.Engine) (types.DocumentOperation, error) {
		return e.LocalDelete(id)
	})
}

// UpdateElement 实现 collab.Service
func (s *Service) UpdateElement(ctx context.Context, documentID uuid.UUID, id types.OperationID, value string) (types.DocumentOperation, error) {
	return s.localEdit(ctx, documentID, func(e *crdt.Engine) (types.DocumentOperation, error) {
		return e.LocalUpdate(id, value)
	})
}

// localEdit 引擎铸 ID 的本地编辑路径
//
// 与 ApplyOperation 相同的顺序：引擎 → 本地发布 → 网络传播；
// 区别只在操作 ID 由引擎在会话锁内铸造。
func (s *Service) localEdit(ctx context.Context, documentID uuid.UUID, edit func(*crdt.Engine) (types.DocumentOperation, error)) (types.DocumentOperation, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return types.DocumentOperation{}, ErrServiceClosed
	}
	sess, err := s.session(documentID)
	if err != nil {
		return types.DocumentOperation{}, err
	}

	sess.mu.Lock()
	op, err := edit(sess.engine)
	sess.mu.Unlock()
	if err != nil {
		return types.DocumentOperation{}, err
	}

	sess.broadcaster.publish(op)

	if err := s.syncer.BroadcastOperation(ctx, documentID, op); err != nil {
		log.Warn("network propagation failed", "doc", documentID, "op", op.ID, "err", err)
	}
	return op, nil
}

// handleRemote 同步层入站操作的处理器
//
// 远端路径：引擎 → 本地发布。不回传网络层。
func (s *Service) handleRemote(from string, documentID uuid.UUID, op types.DocumentOperation) {
	sess, err := s.session(documentID)
	if err != nil {
		log.Debug("remote operation for inactive session", "doc", documentID, "from", from)
		return
	}

	sess.mu.Lock()
	err = sess.engine.Apply(op)
	sess.mu.Unlock()
	if err != nil {
		log.Warn("rejecting remote operation", "doc", documentID, "from", from, "err", err)
		return
	}

	sess.broadcaster.publish(op)
}

// SubscribeToOperations 实现 collab.Service
func (s *Service) SubscribeToOperations(documentID uuid.UUID) (collabif.OperationStream, error) {
	sess, err := s.session(documentID)
	if err != nil {
		return nil, err
	}
	return sess.broadcaster.subscribe()
}

// GetDocumentContent 实现 collab.Service
func (s *Service) GetDocumentContent(documentID uuid.UUID) (types.DocumentContent, error) {
	sess, err := s.session(documentID)
	if err != nil {
		return types.DocumentContent{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.engine.Content(), nil
}

// ============================================================================
//                              版本与会话材料
// ============================================================================

// CreateVersion 实现 collab.Service
//
// 所有者或持有可编辑共享才能建版本；版本号按文档严格递增。
func (s *Service) CreateVersion(ctx context.Context, documentID, userID uuid.UUID) (types.DocumentVersion, error) {
	sess, err := s.session(documentID)
	if err != nil {
		return types.DocumentVersion{}, err
	}

	if err := s.checkEditAccess(ctx, sess.document, userID); err != nil {
		return types.DocumentVersion{}, err
	}

	sess.mu.Lock()
	content := sess.engine.Content()
	sess.mu.Unlock()

	// 取号与落盘必须是一个临界区，否则并发创建读到同一个
	// 最新号，后写覆盖先写
	sess.versionMu.Lock()
	defer sess.versionMu.Unlock()

	latest, err := s.repo.GetLatestVersionNumber(ctx, documentID)
	if err != nil {
		return types.DocumentVersion{}, err
	}

	version := types.DocumentVersion{
		ID:            uuid.New(),
		DocumentID:    documentID,
		VersionNumber: latest + 1,
		Content:       content,
		CreatedAt:     s.clk.Now().UTC(),
		CreatedBy:     userID,
	}
	if err := s.repo.CreateDocumentVersion(ctx, version); err != nil {
		return types.DocumentVersion{}, err
	}

	log.Info("version created",
		"doc", documentID,
		"version", version.VersionNumber,
		"by", userID)
	return version, nil
}

// checkEditAccess 所有者直通，其余用户查共享记录
func (s *Service) checkEditAccess(ctx context.Context, doc types.Document, userID uuid.UUID) error {
	if doc.OwnerID == userID {
		return nil
	}
	share, err := s.repo.GetDocumentShare(ctx, doc.ID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrShareNotFound) {
			return fmt.Errorf("%w: user %s on doc %s", ErrAccessDenied, userID, doc.ID)
		}
		return err
	}
	if !share.Permission.CanEdit() {
		return fmt.Errorf("%w: %s permission cannot create versions", ErrAccessDenied, share.Permission)
	}
	return nil
}

// SaveRatchetSession 实现 collab.Service（不透明代理）
func (s *Service) SaveRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID, sessionBytes []byte) error {
	return s.repo.SaveRatchetSession(ctx, documentID, peerID, sessionBytes)
}

// LoadRatchetSession 实现 collab.Service（不透明代理）
func (s *Service) LoadRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID) ([]byte, error) {
	return s.repo.LoadRatchetSession(ctx, documentID, peerID)
}

// ============================================================================
//                              连通性与维护
// ============================================================================

// SetNetworkConnected 实现 collab.Service
func (s *Service) SetNetworkConnected(connected bool) {
	s.syncer.SetConnected(connected)
}

// ProcessQueuedOperations 实现 collab.Service
func (s *Service) ProcessQueuedOperations(ctx context.Context) (int, error) {
	return s.syncer.ProcessQueuedOperations(ctx)
}

// AddPeer 把对端加入文档会话
func (s *Service) AddPeer(documentID uuid.UUID, peerAddr string) error {
	if _, err := s.session(documentID); err != nil {
		return err
	}
	return s.syncer.AddPeer(documentID, peerAddr)
}

// RemovePeer 把对端移出文档会话
func (s *Service) RemovePeer(documentID uuid.UUID, peerAddr string) {
	s.syncer.RemovePeer(documentID, peerAddr)
}

// expireDangling 清理全部会话的超时悬挂操作
//
// 由周期任务驱动；返回总清理数。
func (s *Service) expireDangling() int {
	s.sessionsMu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.RUnlock()

	total := 0
	for _, sess := range sessions {
		sess.mu.Lock()
		total += len(sess.engine.ExpireDangling())
		sess.mu.Unlock()
	}
	return total
}

// Close 关闭编排器与全部会话
func (s *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.sessionsMu.Lock()
	for id, sess := range s.sessions {
		sess.broadcaster.close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	log.Info("collab service closed")
	return nil
}
