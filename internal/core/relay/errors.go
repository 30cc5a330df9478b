package relay

import "errors"

// Sentinel errors
var (
	// ErrNATTraversalFailed 所有中继服务器均分配失败
	//
	// 浮出给调用方，不自动重试。
	ErrNATTraversalFailed = errors.New("relay: nat traversal failed")

	// ErrNoAllocation 文档没有分配（调用方需先 Allocate）
	ErrNoAllocation = errors.New("relay: no allocation")

	// ErrAllocationExpired 分配已过期（调用方需重新 Allocate）
	ErrAllocationExpired = errors.New("relay: allocation expired")

	// ErrPermissionDenied 对端地址未授权
	ErrPermissionDenied = errors.New("relay: peer not permitted")

	// ErrNoServers 未配置中继服务器
	ErrNoServers = errors.New("relay: no servers configured")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("relay: client closed")
)
