package config

import "fmt"

// StorageConfig 存储配置
type StorageConfig struct {
	// Path 数据目录（InMemory 为 false 时必填）
	Path string `json:"path,omitempty"`

	// InMemory 使用内存存储引擎（测试与演示）
	InMemory bool `json:"in_memory"`

	// CompressSnapshots 版本快照落盘前做 zstd 压缩
	CompressSnapshots bool `json:"compress_snapshots"`
}

// DefaultStorageConfig 返回存储默认配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		InMemory:          true,
		CompressSnapshots: true,
	}
}

// Validate 校验存储配置
func (c *StorageConfig) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("%w: storage path required for persistent mode", ErrInvalidConfig)
	}
	return nil
}
