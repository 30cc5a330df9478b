package collab

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/pkg/interfaces/transport"
	"github.com/dep2p/go-collab/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config
	sender transport.Sender
	clock  clock.Clock
}

func defaultOptions() *options {
	return &options{config: config.Default()}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// WithConfig 整体替换配置
//
// 与其他 With* 选项组合时应放在最前，后续选项在其上修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
		}
		o.config = cfg
		return nil
	}
}

// WithPeerID 指定本地节点标识（默认随机生成）
func WithPeerID(peer types.PeerID) Option {
	return func(o *options) error {
		o.config.PeerID = peer
		return nil
	}
}

// WithStoragePath 使用持久化存储
func WithStoragePath(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("%w: empty storage path", config.ErrInvalidConfig)
		}
		o.config.Storage.InMemory = false
		o.config.Storage.Path = path
		return nil
	}
}

// WithInMemoryStorage 使用内存存储（测试与演示）
func WithInMemoryStorage() Option {
	return func(o *options) error {
		o.config.Storage.InMemory = true
		o.config.Storage.Path = ""
		return nil
	}
}

// WithRelayServers 配置中继服务器列表（按顺序尝试）
func WithRelayServers(servers ...types.RelayServer) Option {
	return func(o *options) error {
		o.config.Relay.Servers = append(o.config.Relay.Servers, servers...)
		return nil
	}
}

// WithOfflineQueueLimit 配置离线队列上限
func WithOfflineQueueLimit(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("%w: queue limit must be positive", config.ErrInvalidConfig)
		}
		o.config.Sync.MaxQueuedOps = n
		return nil
	}
}

// WithDirectSender 注入对端直连发送原语
//
// 直连传输由宿主应用提供；不注入时所有出站流量走中继路径。
func WithDirectSender(sender transport.Sender) Option {
	return func(o *options) error {
		if sender == nil {
			return fmt.Errorf("%w: nil sender", config.ErrInvalidConfig)
		}
		o.sender = sender
		return nil
	}
}

// WithClock 注入时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}
