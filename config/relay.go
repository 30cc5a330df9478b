package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-collab/pkg/types"
)

// RelayConfig 中继客户端配置
//
// # TTL 策略
//
// AllocationTTL 是服务器分配的默认有效期；客户端在
// RefreshInterval（应明显小于 TTL）时续期。过期分配由
// SweepInterval 周期清扫回收，数据路径不做内联清理。
type RelayConfig struct {
	// Servers 中继服务器列表（按顺序尝试，第一个成功者胜出）
	Servers []types.RelayServer `json:"servers,omitempty"`

	// AllocationTTL 分配默认有效期
	AllocationTTL time.Duration `json:"allocation_ttl"`

	// RefreshInterval 续期间隔（需小于 AllocationTTL）
	RefreshInterval time.Duration `json:"refresh_interval"`

	// SweepInterval 过期分配清扫间隔
	SweepInterval time.Duration `json:"sweep_interval"`

	// RequestTimeout 单次分配/续期请求超时
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultRelayConfig 返回中继默认配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		AllocationTTL:   10 * time.Minute,
		RefreshInterval: 4 * time.Minute,
		SweepInterval:   time.Minute,
		RequestTimeout:  15 * time.Second,
	}
}

// Validate 校验中继配置
func (c *RelayConfig) Validate() error {
	if c.AllocationTTL <= 0 {
		return fmt.Errorf("%w: allocation_ttl must be positive", ErrInvalidConfig)
	}
	if c.RefreshInterval <= 0 || c.RefreshInterval >= c.AllocationTTL {
		return fmt.Errorf("%w: refresh_interval must be in (0, allocation_ttl)", ErrInvalidConfig)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}
	for i, s := range c.Servers {
		if s.Address == "" {
			return fmt.Errorf("%w: relay server %d has empty address", ErrInvalidConfig, i)
		}
	}
	return nil
}
