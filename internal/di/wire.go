//go:build wireinject
// +build wireinject

package di

import (
	"VolScreen/pkg/config"
	"VolScreen/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideRateController,
		ProvideStore,
		ProvideCache,
		ProvideExporter,

		// Use cases
		ProvideResolver,
		ProvideOrchestrator,
		ProvideSummaryHolder,

		// HTTP + application
		ProvideReportHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
