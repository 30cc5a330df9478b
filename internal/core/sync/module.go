package sync

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-collab/config"
	relayif "github.com/dep2p/go-collab/pkg/interfaces/relay"
	"github.com/dep2p/go-collab/pkg/interfaces/transport"
)

// ServiceInput 同步层依赖
type ServiceInput struct {
	fx.In

	Config *config.Config
	Direct transport.Sender
	Relay  relayif.Client
}

// ProvideService 提供同步层
func ProvideService(input ServiceInput) (*Service, error) {
	return NewService(input.Config.Sync, input.Direct, input.Relay)
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("sync",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
}
