package app

import (
	"strings"

	"github.com/centrifugal/subclient/internal/config"
	"github.com/centrifugal/subclient/internal/tools"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logStartWarnings(cfg config.Config, cfgMeta config.Meta) {
	if cfg.Client.AuthKey == "" {
		log.Warn().Msg("auth key not set, requests will be rejected if access manager enabled for keyset")
	}
	if strings.HasPrefix(cfg.Client.Origin, "http://") {
		log.Warn().Msg("origin uses plain HTTP, keys are sent unencrypted")
	}
	if !cfg.Listen.Presence && cfg.Listen.Events != "" && strings.Contains(cfg.Listen.Events, "presence") {
		log.Warn().Msg("presence events requested but presence subscription disabled, only local events will be printed")
	}

	for _, key := range cfgMeta.UnknownKeys {
		log.Warn().Str("key", key).Msg("unknown key in configuration file")
	}
	for _, key := range cfgMeta.UnknownEnvs {
		log.Warn().Str("var", key).Msg("unknown var in environment")
	}
}

func logClientKeys(cfg config.Config) {
	log.Info().
		Str("origin", cfg.Client.Origin).
		Str("subscribe_key", tools.RedactKey(cfg.Client.SubscribeKey)).
		Str("publish_key", tools.RedactKey(cfg.Client.PublishKey)).
		Str("auth_key", tools.RedactKey(cfg.Client.AuthKey)).
		Msg("client keys")
}

type httpErrorLogWriter struct {
	zerolog.Logger
}

func (w *httpErrorLogWriter) Write(data []byte) (int, error) {
	w.Logger.Warn().Msg(strings.TrimSpace(string(data)))
	return len(data), nil
}
