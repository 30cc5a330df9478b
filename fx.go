package collab

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	collabcore "github.com/dep2p/go-collab/internal/core/collab"
	relaycore "github.com/dep2p/go-collab/internal/core/relay"
	"github.com/dep2p/go-collab/internal/core/storage"
	synccore "github.com/dep2p/go-collab/internal/core/sync"
	"github.com/dep2p/go-collab/internal/util/logger"
	collabif "github.com/dep2p/go-collab/pkg/interfaces/collab"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/transport"
	"github.com/dep2p/go-collab/pkg/types"
)

var fxLog = logger.Logger("collab/fx")

// relayOnlySender 未注入直连传输时的默认发送原语
//
// 永远失败，使所有出站流量走中继回退路径。
type relayOnlySender struct{}

func (relayOnlySender) Send(_ context.Context, peerAddr string, _ []byte) error {
	return fmt.Errorf("%w: no direct transport configured (peer %s)", transport.ErrTransport, peerAddr)
}

// buildFxApp 组装 Fx 应用
//
// 模块按依赖顺序加载：存储 → 中继 → 同步 → 编排器。
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	cfg := o.config
	if cfg.PeerID == (types.PeerID{}) {
		cfg.PeerID = types.GeneratePeerID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	sender := o.sender
	if sender == nil {
		sender = relayOnlySender{}
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() transport.Sender { return sender }),

		storage.Module(),
		relaycore.Module(),
		synccore.Module(),
		collabcore.Module(),

		fx.Populate(&node.service, &node.syncer, &node.relay, &node.repo),

		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: fxLog}
		}),
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	return fx.New(modules...), nil
}

// 确保编排器实现公开接口（编译期检查）
var _ collabif.Service = (*collabcore.Service)(nil)

// 确保中继客户端实现公开接口
var _ relayif.Client = (*relaycore.Client)(nil)
