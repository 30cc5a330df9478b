package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-collab/config"
	"github.com/dep2p/go-collab/pkg/interfaces/repository"
)

// RepositoryOutput 仓库输出
type RepositoryOutput struct {
	fx.Out

	Store      *Store
	Repository repository.DocumentRepository
}

// ProvideRepository 提供存储与仓库
func ProvideRepository(cfg *config.Config) (RepositoryOutput, error) {
	store, err := Open(cfg.Storage)
	if err != nil {
		return RepositoryOutput{}, err
	}
	repo, err := NewRepository(store, cfg.Storage)
	if err != nil {
		_ = store.Close()
		return RepositoryOutput{}, err
	}
	return RepositoryOutput{Store: store, Repository: repo}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideRepository),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, store *Store) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
}
