package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/internal/util/logger"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/types"
)

var log = logger.Logger("core/relay")

// allocation 单个文档的分配状态
type allocation struct {
	state       types.AllocationState
	relayAddr   string
	server      types.RelayServer
	allocatedAt time.Time
	expiresAt   time.Time
	permissions map[string]struct{}
}

// Client 中继客户端实现
type Client struct {
	cfg       config.RelayConfig
	transport relayif.Transport
	clk       clock.Clock

	// allocations document_id → 分配状态
	//
	// 锁只保护这张表，绝不跨网络调用持有。
	allocations   map[uuid.UUID]*allocation
	allocationsMu sync.RWMutex

	closed int32
}

// NewClient 创建中继客户端
//
// clk 可注入 mock 用于 TTL 行为测试；nil 使用真实时钟。
func NewClient(cfg config.RelayConfig, transport relayif.Transport, clk clock.Clock) *Client {
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		cfg:         cfg,
		transport:   transport,
		clk:         clk,
		allocations: make(map[uuid.UUID]*allocation),
	}
}

// 确保实现接口
var _ relayif.Client = (*Client)(nil)

// ============================================================================
//                              分配生命周期
// ============================================================================

// Prepare 为文档注册一个未分配的会话槽
func (c *Client) Prepare(documentID uuid.UUID) {
	c.allocationsMu.Lock()
	defer c.allocationsMu.Unlock()

	if _, ok := c.allocations[documentID]; !ok {
		c.allocations[documentID] = &allocation{
			state:       types.AllocationUnallocated,
			permissions: make(map[string]struct{}),
		}
	}
}

// Allocate 按顺序尝试配置的中继服务器
//
// 第一个成功的服务器胜出；全部失败返回 ErrNATTraversalFailed，
// 包装各服务器的失败原因。
func (c *Client) Allocate(ctx context.Context, documentID uuid.UUID) (string, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return "", ErrClientClosed
	}
	if len(c.cfg.Servers) == 0 {
		return "", ErrNoServers
	}

	var errs error
	for _, server := range c.cfg.Servers {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		relayAddr, ttl, err := c.transport.RequestAllocation(reqCtx, server)
		cancel()
		if err != nil {
			log.Debug("allocation attempt failed",
				"server", server.Address,
				"err", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", server.Address, err))
			continue
		}

		if ttl <= 0 {
			ttl = c.cfg.AllocationTTL
		}
		now := c.clk.Now()

		c.allocationsMu.Lock()
		c.allocations[documentID] = &allocation{
			state:       types.AllocationActive,
			relayAddr:   relayAddr,
			server:      server,
			allocatedAt: now,
			expiresAt:   now.Add(ttl),
			permissions: make(map[string]struct{}),
		}
		c.allocationsMu.Unlock()

		log.Info("relay allocated",
			"doc", documentID,
			"server", server.Address,
			"relay_addr", relayAddr,
			"ttl", ttl)
		return relayAddr, nil
	}

	return "", fmt.Errorf("%w: %v", ErrNATTraversalFailed, errs)
}

// CreatePermission 授权对端地址经中继通信
func (c *Client) CreatePermission(documentID uuid.UUID, peerAddr string) error {
	c.allocationsMu.Lock()
	defer c.allocationsMu.Unlock()

	a, ok := c.allocations[documentID]
	if !ok || a.state == types.AllocationUnallocated {
		return ErrNoAllocation
	}
	if c.expiredLocked(a) {
		return ErrAllocationExpired
	}

	a.permissions[peerAddr] = struct{}{}
	log.Debug("relay permission created", "doc", documentID, "peer", peerAddr)
	return nil
}

// SendData 经中继向已授权对端发送数据
//
// 要求分配有效且 peerAddr 已授权；成帧交给注入的传输实现。
func (c *Client) SendData(ctx context.Context, documentID uuid.UUID, peerAddr string, data []byte) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}

	c.allocationsMu.RLock()
	a, ok := c.allocations[documentID]
	if !ok || a.state == types.AllocationUnallocated {
		c.allocationsMu.RUnlock()
		return ErrNoAllocation
	}
	if c.expiredLocked(a) {
		c.allocationsMu.RUnlock()
		return ErrAllocationExpired
	}
	if _, permitted := a.permissions[peerAddr]; !permitted {
		c.allocationsMu.RUnlock()
		return fmt.Errorf("%w: %s", ErrPermissionDenied, peerAddr)
	}
	server := a.server
	relayAddr := a.relayAddr
	c.allocationsMu.RUnlock()

	// 网络调用不持锁
	return c.transport.Send(ctx, server, relayAddr, peerAddr, data)
}

// RefreshAllocation 延长分配有效期
//
// 已过期的分配无法续期：调用方必须重新 Allocate。
func (c *Client) RefreshAllocation(ctx context.Context, documentID uuid.UUID) error {
	c.allocationsMu.RLock()
	a, ok := c.allocations[documentID]
	if !ok || a.state == types.AllocationUnallocated {
		c.allocationsMu.RUnlock()
		return ErrNoAllocation
	}
	if c.expiredLocked(a) {
		c.allocationsMu.RUnlock()
		return ErrAllocationExpired
	}
	server := a.server
	relayAddr := a.relayAddr
	c.allocationsMu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	ttl, err := c.transport.Refresh(reqCtx, server, relayAddr)
	cancel()
	if err != nil {
		return fmt.Errorf("relay: refresh failed: %w", err)
	}
	if ttl <= 0 {
		ttl = c.cfg.AllocationTTL
	}

	c.allocationsMu.Lock()
	defer c.allocationsMu.Unlock()
	// 续期窗口内分配可能已被清扫或重建，重新校验
	a, ok = c.allocations[documentID]
	if !ok || a.state != types.AllocationActive {
		return ErrNoAllocation
	}
	a.expiresAt = c.clk.Now().Add(ttl)
	log.Debug("relay allocation refreshed", "doc", documentID, "expires", a.expiresAt)
	return nil
}

// ============================================================================
//                              观测与维护
// ============================================================================

// IsAllocationValid 报告文档当前是否持有有效分配
func (c *Client) IsAllocationValid(documentID uuid.UUID) bool {
	c.allocationsMu.RLock()
	defer c.allocationsMu.RUnlock()

	a, ok := c.allocations[documentID]
	return ok && a.state == types.AllocationActive && !c.expiredLocked(a)
}

// Allocation 返回分配的只读快照
func (c *Client) Allocation(documentID uuid.UUID) (types.TurnAllocation, bool) {
	c.allocationsMu.RLock()
	defer c.allocationsMu.RUnlock()

	a, ok := c.allocations[documentID]
	if !ok || a.state != types.AllocationActive {
		return types.TurnAllocation{}, false
	}

	perms := make([]string, 0, len(a.permissions))
	for p := range a.permissions {
		perms = append(perms, p)
	}
	return types.TurnAllocation{
		RelayAddr:   a.relayAddr,
		Server:      a.server,
		AllocatedAt: a.allocatedAt,
		ExpiresAt:   a.expiresAt,
		Permissions: perms,
	}, true
}

// RefreshActiveAllocations 为所有活跃分配续期
//
// 由周期任务按 RefreshInterval 驱动，保持长会话的分配在
// TTL 耗尽前续上。单个分配续期失败只记录，等待下一轮或被
// 清扫回收。返回成功续期数。
func (c *Client) RefreshActiveAllocations(ctx context.Context) int {
	if atomic.LoadInt32(&c.closed) == 1 {
		return 0
	}

	c.allocationsMu.RLock()
	ids := make([]uuid.UUID, 0, len(c.allocations))
	for docID, a := range c.allocations {
		if a.state == types.AllocationActive && !c.expiredLocked(a) {
			ids = append(ids, docID)
		}
	}
	c.allocationsMu.RUnlock()

	refreshed := 0
	for _, docID := range ids {
		if err := c.RefreshAllocation(ctx, docID); err != nil {
			log.Warn("periodic refresh failed", "doc", docID, "err", err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// CleanupExpiredAllocations 清扫所有过期分配
//
// 由周期任务调用，返回清除数量。清扫只把条目退回
// Expired 态并清空权限；会话槽保留，等待重新分配。
func (c *Client) CleanupExpiredAllocations() int {
	c.allocationsMu.Lock()
	defer c.allocationsMu.Unlock()

	cleaned := 0
	for docID, a := range c.allocations {
		if a.state == types.AllocationActive && c.expiredLocked(a) {
			a.state = types.AllocationExpired
			a.relayAddr = ""
			a.permissions = make(map[string]struct{})
			cleaned++
			log.Info("relay allocation expired", "doc", docID)
		}
	}
	return cleaned
}

// Release 释放文档的会话槽
func (c *Client) Release(documentID uuid.UUID) {
	c.allocationsMu.Lock()
	defer c.allocationsMu.Unlock()
	delete(c.allocations, documentID)
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	log.Info("relay client closed")
	return nil
}

// expiredLocked 检查分配是否过期（调用方持锁）
func (c *Client) expiredLocked(a *allocation) bool {
	return a.state == types.AllocationExpired || !a.expiresAt.After(c.clk.Now())
}
