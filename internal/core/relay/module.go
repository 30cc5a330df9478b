package relay

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-collab/config"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
)

// ClientInput 中继客户端依赖
type ClientInput struct {
	fx.In

	Config    *config.Config
	Transport relayif.Transport
	Clock     clock.Clock `optional:"true"`
}

// ClientOutput 中继客户端输出
type ClientOutput struct {
	fx.Out

	Client relayif.Client
}

// ProvideClient 提供中继客户端
func ProvideClient(input ClientInput) ClientOutput {
	return ClientOutput{
		Client: NewClient(input.Config.Relay, input.Transport, input.Clock),
	}
}

// ProvideTransport 提供 WebSocket 中继传输
func ProvideTransport() relayif.Transport {
	return NewWSTransport()
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(
			ProvideTransport,
			ProvideClient,
		),
		fx.Invoke(registerMaintenance),
	)
}

// registerMaintenance 注册分配维护的周期任务
//
// 两个节拍：RefreshInterval 为活跃分配续期，SweepInterval
// 回收已过期的分配。
func registerMaintenance(lc fx.Lifecycle, cfg *config.Config, c relayif.Client) {
	impl, ok := c.(*Client)
	if !ok {
		return
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(stopped)
				refresh := impl.clk.Ticker(cfg.Relay.RefreshInterval)
				defer refresh.Stop()
				sweep := impl.clk.Ticker(cfg.Relay.SweepInterval)
				defer sweep.Stop()
				for {
					select {
					case <-refresh.C:
						if n := impl.RefreshActiveAllocations(context.Background()); n > 0 {
							log.Debug("refreshed active allocations", "count", n)
						}
					case <-sweep.C:
						if n := impl.CleanupExpiredAllocations(); n > 0 {
							log.Debug("sweep cleaned allocations", "count", n)
						}
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			select {
			case <-stopped:
			case <-ctx.Done():
				return ctx.Err()
			}
			if tc, ok := impl.transport.(*WSTransport); ok {
				_ = tc.Close()
			}
			return impl.Close()
		},
	})
}
