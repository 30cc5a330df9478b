package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	synccore "github.com/dep2p/go-collab/internal/core/sync"
	collabif "github.com/dep2p/go-collab/pkg/interfaces/collab"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/types"
)

// Version 当前版本
const Version = "v0.1.0"

// startTimeout Fx 应用启动/停止超时
const startTimeout = 30 * time.Second

// Node 一个可嵌入的协作节点
//
// 组合存储、中继客户端、同步层与编排器；通过 New 创建，
// Close 释放全部资源。
type Node struct {
	app *fx.App

	service collabif.Service
	syncer  *synccore.Service
	relay   relayif.Client
	repo    repository.DocumentRepository

	peerID types.PeerID
}

// New 创建并启动协作节点
func New(opts ...Option) (*Node, error) {
	o := defaultOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	node := &Node{}
	app, err := buildFxApp(o, node)
	if err != nil {
		return nil, err
	}
	node.app = app
	node.peerID = o.config.PeerID

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("collab: start: %w", err)
	}
	return node, nil
}

// Close 停止节点并释放资源
func (n *Node) Close() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	return n.app.Stop(stopCtx)
}

// PeerID 返回本地节点标识
func (n *Node) PeerID() types.PeerID {
	return n.peerID
}

// Service 返回编排器接口
func (n *Node) Service() collabif.Service {
	return n.service
}

// Relay 返回中继客户端（观测与手工管理）
func (n *Node) Relay() relayif.Client {
	return n.relay
}

// Repository 返回文档仓库
//
// 文档聚合由宿主应用拥有；在会话初始化前用它写入文档。
func (n *Node) Repository() repository.DocumentRepository {
	return n.repo
}

// ============================================================================
//                              编排器代理
// ============================================================================

// InitializeDocument 建立文档的协作会话
func (n *Node) InitializeDocument(ctx context.Context, documentID, userID uuid.UUID) error {
	return n.service.InitializeDocument(ctx, documentID, userID)
}

// ApplyOperation 应用本地操作并传播
func (n *Node) ApplyOperation(ctx context.Context, documentID uuid.UUID, op types.DocumentOperation) error {
	return n.service.ApplyOperation(ctx, documentID, op)
}

// InsertElement 本地插入，操作 ID 由引擎铸造
func (n *Node) InsertElement(ctx context.Context, documentID uuid.UUID, parent types.OperationID, position int, value string) (types.DocumentOperation, error) {
	return n.service.InsertElement(ctx, documentID, parent, position, value)
}

// DeleteElement 本地删除已有元素
func (n *Node) DeleteElement(ctx context.Context, documentID uuid.UUID, id types.OperationID) (types.DocumentOperation, error) {
	return n.service.DeleteElement(ctx, documentID, id)
}

// UpdateElement 本地更新已有元素的值
func (n *Node) UpdateElement(ctx context.Context, documentID uuid.UUID, id types.OperationID, value string) (types.DocumentOperation, error) {
	return n.service.UpdateElement(ctx, documentID, id, value)
}

// SubscribeToOperations 订阅文档的实时操作流
func (n *Node) SubscribeToOperations(documentID uuid.UUID) (collabif.OperationStream, error) {
	return n.service.SubscribeToOperations(documentID)
}

// GetDocumentContent 物化文档当前内容树
func (n *Node) GetDocumentContent(documentID uuid.UUID) (types.DocumentContent, error) {
	return n.service.GetDocumentContent(documentID)
}

// CreateVersion 创建版本快照（要求所有者或可编辑共享）
func (n *Node) CreateVersion(ctx context.Context, documentID, userID uuid.UUID) (types.DocumentVersion, error) {
	return n.service.CreateVersion(ctx, documentID, userID)
}

// SaveRatchetSession 持久化棘轮会话
func (n *Node) SaveRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID, session []byte) error {
	return n.service.SaveRatchetSession(ctx, documentID, peerID, session)
}

// LoadRatchetSession 读取棘轮会话
func (n *Node) LoadRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID) ([]byte, error) {
	return n.service.LoadRatchetSession(ctx, documentID, peerID)
}

// SetNetworkConnected 显式设置网络连通状态
func (n *Node) SetNetworkConnected(connected bool) {
	n.service.SetNetworkConnected(connected)
}

// ProcessQueuedOperations 按原始顺序冲刷离线队列
func (n *Node) ProcessQueuedOperations(ctx context.Context) (int, error) {
	return n.service.ProcessQueuedOperations(ctx)
}

// CloseDocument 结束文档会话
func (n *Node) CloseDocument(documentID uuid.UUID) error {
	return n.service.CloseDocument(documentID)
}

// ============================================================================
//                              网络接入
// ============================================================================

// AddPeer 把对端加入文档会话
func (n *Node) AddPeer(documentID uuid.UUID, peerAddr string) error {
	if err := n.syncer.AddPeer(documentID, peerAddr); err != nil {
		return err
	}
	// 中继路径需要显式授权；分配尚未建立时忽略
	if n.relay.IsAllocationValid(documentID) {
		if err := n.relay.CreatePermission(documentID, peerAddr); err != nil {
			return err
		}
	}
	return nil
}

// RemovePeer 把对端移出文档会话
func (n *Node) RemovePeer(documentID uuid.UUID, peerAddr string) {
	n.syncer.RemovePeer(documentID, peerAddr)
}

// HandleIncoming 处理宿主传输层交来的入站帧
//
// 直连传输由宿主应用拥有；收到对端字节后从这里交还引擎。
func (n *Node) HandleIncoming(from string, data []byte) error {
	return n.syncer.HandleIncoming(from, data)
}
