package collab

import (
	collabcore "github.com/dep2p/go-collab/internal/core/collab"
	"github.com/dep2p/go-collab/internal/core/crdt"
	relaycore "github.com/dep2p/go-collab/internal/core/relay"
	synccore "github.com/dep2p/go-collab/internal/core/sync"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
	"github.com/dep2p/go-collab/pkg/interfaces/transport"
)

// 公共错误定义
//
// 子系统的哨兵错误在这里统一再导出，调用方用 errors.Is
// 匹配，无须 import 内部包。
var (
	// ErrDocumentNotFound 文档不存在或没有活跃会话
	ErrDocumentNotFound = collabcore.ErrDocumentNotFound

	// ErrAccessDenied 调用者没有执行该操作的权限
	ErrAccessDenied = collabcore.ErrAccessDenied

	// ErrSubscriptionClosed 操作流订阅已结束
	ErrSubscriptionClosed = collabcore.ErrSubscriptionClosed

	// ErrUnknownOperation 未知操作变体（畸形远端输入）
	ErrUnknownOperation = crdt.ErrUnknownOperation

	// ErrDanglingOperation 操作引用的依赖超时未到达
	ErrDanglingOperation = crdt.ErrDanglingOperation

	// ErrTransport 直连发送失败（可经中继回退恢复）
	ErrTransport = transport.ErrTransport

	// ErrNATTraversalFailed 全部中继服务器分配失败
	ErrNATTraversalFailed = relaycore.ErrNATTraversalFailed

	// ErrNoAllocation 文档没有中继分配
	ErrNoAllocation = relaycore.ErrNoAllocation

	// ErrAllocationExpired 中继分配已过期，需要重新分配
	ErrAllocationExpired = relaycore.ErrAllocationExpired

	// ErrQueueOverflow 离线队列到达上限，最旧条目已被丢弃
	ErrQueueOverflow = synccore.ErrQueueOverflow

	// ErrSessionNotFound 棘轮会话不存在
	ErrSessionNotFound = repository.ErrSessionNotFound
)
