//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/brandcraft/server/internal/shared/config"
)

// InitializeApp wires the application from configuration.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		InfraSet,
		StoreSet,
		DomainSet,
		HTTPSet,
		newApp,
	)
	return nil, nil, nil
}
