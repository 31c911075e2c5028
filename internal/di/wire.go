//go:build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/tutorlink/tutorlink-api/internal/app"
	"github.com/tutorlink/tutorlink-api/internal/config"
	"github.com/tutorlink/tutorlink-api/internal/repository"
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, func(), error) {
	wire.Build(
		StorageSet,
		ServiceSet,
		HTTPSet,
		provideRuntime,
		app.New,
	)
	return nil, nil, nil
}

func InitializeTools(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Tools, func(), error) {
	wire.Build(
		provideDB,
		provideKVStore,
		repository.NewAdminRepository,
		provideJWTManager,
		provideTokenLedger,
		provideAdminService,
		newTools,
	)
	return nil, nil, nil
}
