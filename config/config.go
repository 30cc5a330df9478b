// Package config 提供 go-collab 的统一配置
//
// 配置按子系统分节（Relay / Sync / CRDT / Storage），
// 每节有默认值构造函数和 Validate 校验。
package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-collab/pkg/types"
)

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = errors.New("config: invalid config")

// Config go-collab 统一配置
type Config struct {
	// PeerID 本地节点标识（空则随机生成）
	PeerID types.PeerID `json:"peer_id,omitempty"`

	// Relay 中继客户端配置
	Relay RelayConfig `json:"relay"`

	// Sync 同步层配置
	Sync SyncConfig `json:"sync"`

	// CRDT CRDT 引擎配置
	CRDT CRDTConfig `json:"crdt"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Relay:   DefaultRelayConfig(),
		Sync:    DefaultSyncConfig(),
		CRDT:    DefaultCRDTConfig(),
		Storage: DefaultStorageConfig(),
	}
}

// Validate 校验整个配置
func (c *Config) Validate() error {
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.CRDT.Validate(); err != nil {
		return fmt.Errorf("crdt: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
