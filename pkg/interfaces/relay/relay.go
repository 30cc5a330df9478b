// Package relay 定义 NAT 穿透中继客户端接口
//
// 当对端直连不可达时，同步层通过这里的能力接口把流量
// 转发到远端 rendezvous 服务器分配的中继地址。
// 分配有 TTL，过期后必须重新分配；对端地址需要先授权
// 才能经中继发送。
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-collab/pkg/types"
)

// Client 中继客户端能力接口
//
// 每个文档独立维护一个分配状态机：
// Unallocated → Allocated → Expired。
type Client interface {
	// Prepare 为文档注册一个未分配的会话槽
	//
	// 分配是惰性的：首次需要中继路径时才调用 Allocate。
	Prepare(documentID uuid.UUID)

	// Allocate 在配置的服务器列表上按顺序尝试分配
	//
	// 第一个成功的服务器胜出；全部失败返回
	// ErrNATTraversalFailed（包装各服务器的失败原因）。
	Allocate(ctx context.Context, documentID uuid.UUID) (relayAddr string, err error)

	// CreatePermission 授权对端地址经中继通信
	//
	// 无分配返回 ErrNoAllocation；分配过期返回 ErrAllocationExpired。
	CreatePermission(documentID uuid.UUID, peerAddr string) error

	// SendData 经中继向已授权的对端发送数据
	//
	// 要求分配有效且 peerAddr 已授权，否则返回相应错误。
	SendData(ctx context.Context, documentID uuid.UUID, peerAddr string, data []byte) error

	// RefreshAllocation 延长分配有效期
	//
	// 已过期的分配无法续期，调用方必须重新 Allocate。
	RefreshAllocation(ctx context.Context, documentID uuid.UUID) error

	// IsAllocationValid 报告文档当前是否持有有效分配
	IsAllocationValid(documentID uuid.UUID) bool

	// Allocation 返回分配的只读快照
	Allocation(documentID uuid.UUID) (types.TurnAllocation, bool)

	// CleanupExpiredAllocations 清扫所有过期分配，返回清除数量
	//
	// 由周期任务调用，不在数据路径上内联执行。
	CleanupExpiredAllocations() int

	// Release 释放文档的会话槽（文档会话结束时调用）
	Release(documentID uuid.UUID)
}

// Transport 中继传输能力（客户端对 rendezvous 服务器的最小依赖）
//
// 设计目的：隔离中继协议成帧这一外部协作者，分配生命周期、
// 权限与 TTL 管理留在 Client 实现中。实现是编译期选择的，
// 没有运行时反射。
type Transport interface {
	// RequestAllocation 向服务器请求一个中继地址
	RequestAllocation(ctx context.Context, server types.RelayServer) (relayAddr string, ttl time.Duration, err error)

	// Refresh 请求延长分配有效期
	Refresh(ctx context.Context, server types.RelayServer, relayAddr string) (ttl time.Duration, err error)

	// Send 通过中继地址向对端转发数据（不透明发送）
	Send(ctx context.Context, server types.RelayServer, relayAddr, peerAddr string, data []byte) error
}
