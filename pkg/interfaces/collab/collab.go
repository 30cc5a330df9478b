// Package collab 定义协作编排器对外暴露的接口
//
// UI 层或传输网关通过这个接口驱动每个活跃文档的会话：
// 初始化、应用操作、订阅操作流、取内容、建版本、
// 管理网络连通性与离线队列。
package collab

import (
	"context"

	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// OperationStream 文档操作的实时订阅流
//
// 订阅从订阅时刻开始（不回放历史）；Cancel 后 Next
// 返回错误。慢消费者的缓冲溢出时丢弃消息而不是阻塞发布方。
type OperationStream interface {
	// Next 获取下一条操作，阻塞直到有消息或 ctx 取消
	Next(ctx context.Context) (types.DocumentOperation, error)

	// Cancel 取消订阅并释放资源
	Cancel()
}

// Service 协作编排器接口
type Service interface {
	// InitializeDocument 建立文档的协作会话
	//
	// 加载持久化内容，构建 CRDT 引擎，把已有内容转换为
	// 初始 Insert 序列在本地应用（建立基线状态），并向
	// 同步层注册文档、向中继客户端准备会话槽。
	InitializeDocument(ctx context.Context, documentID, userID uuid.UUID) error

	// ApplyOperation 应用本地操作
	//
	// 顺序固定：先应用到 CRDT 引擎，再发布给本地订阅者，
	// 最后交给同步层做网络传播——本地订阅者观察到自己的
	// 编辑永远先于任何网络延迟。
	ApplyOperation(ctx context.Context, documentID uuid.UUID, op types.DocumentOperation) error

	// InsertElement 本地插入，操作 ID 由引擎铸造
	//
	// 引擎计数器保证 ID 在文档生命周期内唯一；调用方不需要
	// （也不应该）自行维护计数器。返回已应用并交付传播的
	// 操作，传播顺序与 ApplyOperation 相同。
	InsertElement(ctx context.Context, documentID uuid.UUID, parent types.OperationID, position int, value string) (types.DocumentOperation, error)

	// DeleteElement 本地删除已有元素（留墓碑）
	DeleteElement(ctx context.Context, documentID uuid.UUID, id types.OperationID) (types.DocumentOperation, error)

	// UpdateElement 本地更新已有元素的值
	UpdateElement(ctx context.Context, documentID uuid.UUID, id types.OperationID, value string) (types.DocumentOperation, error)

	// SubscribeToOperations 订阅文档的操作流（实时，不回放）
	SubscribeToOperations(documentID uuid.UUID) (OperationStream, error)

	// GetDocumentContent 物化文档当前内容树
	GetDocumentContent(documentID uuid.UUID) (types.DocumentContent, error)

	// CreateVersion 创建版本快照
	//
	// 要求调用者是文档所有者或持有可编辑共享，否则返回
	// ErrAccessDenied。版本号按文档严格递增。
	CreateVersion(ctx context.Context, documentID, userID uuid.UUID) (types.DocumentVersion, error)

	// SaveRatchetSession 持久化棘轮会话（不透明代理）
	SaveRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID, session []byte) error

	// LoadRatchetSession 读取棘轮会话
	LoadRatchetSession(ctx context.Context, documentID uuid.UUID, peerID types.PeerID) ([]byte, error)

	// SetNetworkConnected 显式设置网络连通状态
	//
	// 连通性是显式状态而不是推断结果，编排器据此决定
	// 何时冲刷离线队列，避免"网络看起来通了"与实际可达
	// 之间的竞态。
	SetNetworkConnected(connected bool)

	// ProcessQueuedOperations 按原始顺序冲刷离线队列
	//
	// 返回成功送出的操作数。
	ProcessQueuedOperations(ctx context.Context) (int, error)

	// CloseDocument 结束文档会话并释放资源
	CloseDocument(documentID uuid.UUID) error
}
