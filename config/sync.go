package config

import (
	"fmt"
	"time"
)

// SyncConfig 同步层配置
type SyncConfig struct {
	// MaxQueuedOps 离线队列上限
	//
	// 超出上限时丢弃最旧条目并记录 QueueOverflow。
	MaxQueuedOps int `json:"max_queued_ops"`

	// MaxAttempts 单条操作的最大投递尝试次数
	//
	// 超过后不再重排队，避免无限增长。
	MaxAttempts int `json:"max_attempts"`

	// SeenCacheSize 入站去重缓存大小（LRU）
	SeenCacheSize int `json:"seen_cache_size"`

	// SendTimeout 单个对端的发送超时
	SendTimeout time.Duration `json:"send_timeout"`
}

// DefaultSyncConfig 返回同步层默认配置
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxQueuedOps:  1000,
		MaxAttempts:   5,
		SeenCacheSize: 4096,
		SendTimeout:   10 * time.Second,
	}
}

// Validate 校验同步层配置
func (c *SyncConfig) Validate() error {
	if c.MaxQueuedOps <= 0 {
		return fmt.Errorf("%w: max_queued_ops must be positive", ErrInvalidConfig)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	}
	if c.SeenCacheSize <= 0 {
		return fmt.Errorf("%w: seen_cache_size must be positive", ErrInvalidConfig)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%w: send_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
