// Package bootstrap builds the services shared by the API server and the CLI
// from a loaded configuration.
package bootstrap

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/config"
	"github.com/zhouzirui/constitution-portal/backend/internal/logger"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/ai"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/answer"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/catalog"
	"github.com/zhouzirui/constitution-portal/backend/internal/service/download"
	"github.com/zhouzirui/constitution-portal/backend/internal/storage"
)

// OpenSlot opens the transcript backend named by cfg. The returned func
// releases it.
func OpenSlot(ctx context.Context, cfg config.StorageConfig) (storage.Slot, func(), error) {
	switch cfg.Backend {
	case config.StorageFile:
		slot, err := storage.NewFileSlot(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return slot, func() {}, nil
	case config.StorageRedis:
		slot, err := storage.OpenRedisSlot(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		return slot, func() { _ = slot.Close() }, nil
	default:
		return storage.NewMemorySlot(), func() {}, nil
	}
}

// Documents returns the remote catalog when enabled, else the built-in list.
func Documents(cfg config.CatalogConfig, log zerolog.Logger) document.Store {
	if cfg.Remote {
		log.Info().Str("base_url", cfg.BaseURL).Msg("using remote document catalog")
		return catalog.NewRemoteStore(cfg.BaseURL, cfg.Timeout, logger.Component(log, "catalog"))
	}
	return document.NewMemoryStore(document.Seed())
}

// Answerer prefers the remote chat endpoint, then the Ark model. Without
// either, every question fails with a server error.
func Answerer(ctx context.Context, cfg *config.Config, documents document.Store, log zerolog.Logger) answer.Answerer {
	if cfg.Chat.Endpoint != "" {
		log.Info().Str("endpoint", cfg.Chat.Endpoint).Msg("answering through remote chat endpoint")
		return answer.NewHTTPAnswerer(answer.HTTPConfig{
			Endpoint:      cfg.Chat.Endpoint,
			QuestionField: cfg.Chat.QuestionField,
			Timeout:       cfg.Chat.Timeout,
		}, logger.Component(log, "answer"))
	}

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err == nil {
			var answerer *ai.ModelAnswerer
			answerer, err = ai.NewModelAnswerer(ctx, chatModel, documents, logger.Component(log, "ai"))
			if err == nil {
				log.Info().Str("model", cfg.AI.Model).Msg("answering through Ark model")
				return answerer
			}
		}
		log.Warn().Err(err).Msg("failed to initialize AI service - 请检查 Ark 模型相关环境变量")
	} else {
		log.Warn().Msg("CHAT_ENDPOINT 与 Ark 凭证均未配置，问题将返回服务错误")
	}

	return Unavailable
}

// Unavailable answers every question with a 503 service error.
var Unavailable answer.Answerer = answer.Func(func(context.Context, answer.Question) (answer.Answer, error) {
	return answer.Answer{}, &answer.ServiceError{
		Kind:   answer.KindServer,
		Status: http.StatusServiceUnavailable,
		Detail: "no answer backend configured",
	}
})

// Blobs spools downloads to disk when dir is set, else keeps them in memory.
func Blobs(dir string) (download.BlobStore, error) {
	if dir == "" {
		return download.NewMemoryBlobs(), nil
	}
	return download.NewTempDirBlobs(dir)
}
