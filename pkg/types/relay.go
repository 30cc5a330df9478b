package types

import "time"

// ============================================================================
//                              中继相关类型
// ============================================================================

// RelayServer 中继（rendezvous）服务器配置项
//
// 服务器按配置顺序依次尝试，彼此可互换；
// 凭据用于服务器侧的分配鉴权，本引擎不解释其内容。
type RelayServer struct {
	// Address 服务器地址，例如 "wss://relay-1.example.com:5349"
	Address string `json:"address"`

	// Username 鉴权用户名
	Username string `json:"username,omitempty"`

	// Credential 鉴权凭据
	Credential string `json:"credential,omitempty"`

	// Realm 鉴权域
	Realm string `json:"realm,omitempty"`
}

// AllocationState 分配状态机
//
// Unallocated → Allocated → Expired
type AllocationState int

const (
	// AllocationUnallocated 尚未分配
	AllocationUnallocated AllocationState = iota
	// AllocationActive 分配有效
	AllocationActive
	// AllocationExpired 已过期（需重新分配）
	AllocationExpired
)

// String 返回分配状态名称
func (s AllocationState) String() string {
	switch s {
	case AllocationUnallocated:
		return "unallocated"
	case AllocationActive:
		return "allocated"
	case AllocationExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TurnAllocation 中继分配的只读快照
//
// 生命周期：首次分配请求时创建；RefreshAllocation 延长
// ExpiresAt；过期条目由周期清扫回收。对某个对端地址的
// 中继发送要求该地址先出现在 Permissions 中。
type TurnAllocation struct {
	// RelayAddr 中继为本节点分配的转发地址
	RelayAddr string `json:"relay_addr"`

	// Server 成功分配的服务器（用于续期与发送）
	Server RelayServer `json:"server"`

	// AllocatedAt 分配时刻
	AllocatedAt time.Time `json:"allocated_at"`

	// ExpiresAt 过期时刻
	ExpiresAt time.Time `json:"expires_at"`

	// Permissions 已授权的对端地址
	Permissions []string `json:"permissions,omitempty"`
}

// IsExpired 报告分配在 now 时刻是否已过期
func (a TurnAllocation) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}
