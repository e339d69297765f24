//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/behaviour/internal/config"
)

// InitApp assembles the host from cfg.
func InitApp(cfg *config.Config) (*App, func(), error) {
	panic(wire.Build(ProviderSet))
}
