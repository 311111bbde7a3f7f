//go:build wireinject
// +build wireinject

package di

import (
	"CapFlow/pkg/config"
	"CapFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup func releases caches, stores and producers; call it after Run.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Data
		ProvideObservationStore,
		ProvideFlowSource,
		ProvideSnapshotPublisher,

		// Domain services
		ProvideAnalyzer,
		ProvideNarrator,

		// Use cases
		ProvideFlowDashboard,

		// Transport
		ProvideTapeHub,
		ProvideFlowsHandler,
		ProvideKafkaConsumer,
		ProvideObservationsHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
