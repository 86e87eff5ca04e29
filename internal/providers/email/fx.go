package email

import (
	"github.com/changespage/changespage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Email.Provider {
	case "postmark":
		return NewPostmark(cfg.Email.PostmarkToken, cfg.Email.From, log)
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	default:
		log.Warn("email provider not configured, emails will be dropped",
			zap.String("provider", cfg.Email.Provider))
		return &NoOpProvider{}
	}
}
