package config

import (
	"fmt"
	"time"
)

// CRDTConfig CRDT 引擎配置
//
// 悬挂操作（父元素尚未到达）会被缓冲而不是拒绝，以容忍
// 乱序投递。缓冲有界且带超时：原始设计未指定具体值，
// 这里作为显式配置旋钮暴露。
type CRDTConfig struct {
	// MaxDanglingOps 悬挂操作缓冲上限
	MaxDanglingOps int `json:"max_dangling_ops"`

	// DanglingTimeout 悬挂操作的缓冲超时
	//
	// 超时条目被丢弃并以 DanglingOperation 告警浮出，
	// 不会破坏已收敛状态。
	DanglingTimeout time.Duration `json:"dangling_timeout"`
}

// DefaultCRDTConfig 返回 CRDT 默认配置
func DefaultCRDTConfig() CRDTConfig {
	return CRDTConfig{
		MaxDanglingOps:  512,
		DanglingTimeout: 30 * time.Second,
	}
}

// Validate 校验 CRDT 配置
func (c *CRDTConfig) Validate() error {
	if c.MaxDanglingOps <= 0 {
		return fmt.Errorf("%w: max_dangling_ops must be positive", ErrInvalidConfig)
	}
	if c.DanglingTimeout <= 0 {
		return fmt.Errorf("%w: dangling_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
