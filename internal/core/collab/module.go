package collab

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-collab/config"
	syncsvc "github.com/dep2p/go-collab/internal/core/sync"
	collabif "github.com/dep2p/go-collab/pkg/interfaces/collab"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
)

// ServiceInput 编排器依赖
type ServiceInput struct {
	fx.In

	Config     *config.Config
	Repository repository.DocumentRepository
	Sync       *syncsvc.Service
	Relay      relayif.Client
	Clock      clock.Clock `optional:"true"`
}

// ServiceOutput 编排器输出
type ServiceOutput struct {
	fx.Out

	Service collabif.Service
}

// ProvideService 提供编排器
func ProvideService(input ServiceInput) ServiceOutput {
	return ServiceOutput{
		Service: NewService(input.Config, input.Repository, input.Sync, input.Relay, input.Clock),
	}
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("collab",
		fx.Provide(ProvideService),
		fx.Invoke(registerDanglingSweeper),
	)
}

// registerDanglingSweeper 注册悬挂操作的周期清理任务
func registerDanglingSweeper(lc fx.Lifecycle, cfg *config.Config, svc collabif.Service) {
	impl, ok := svc.(*Service)
	if !ok {
		return
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(stopped)
				ticker := impl.clk.Ticker(cfg.CRDT.DanglingTimeout)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						if n := impl.expireDangling(); n > 0 {
							log.Warn("expired dangling operations", "count", n)
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
			return impl.Close()
		},
	})
}
