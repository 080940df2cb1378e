package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/opsdesk/authcore/token"
)

// Builder assembles an Engine. Missing signing secrets or a missing account
// provider fail Build — they are startup defects, not request errors.
type Builder struct {
	config   Config
	accounts AccountProvider
	logger   *slog.Logger

	built bool
}

// New starts a builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAccountProvider sets the persistence implementation.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}

	cfg := b.config
	cfg.applyDefaults()

	tm, err := token.NewManager(token.Config{
		AccessSecret:         cfg.Token.AccessSecret,
		RefreshSecret:        cfg.Token.RefreshSecret,
		AccessTTL:            cfg.Token.AccessTTL,
		RefreshTTL:           cfg.Token.RefreshTTL,
		RememberMeRefreshTTL: cfg.Token.RememberMeRefreshTTL,
		Issuer:               cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	b.built = true

	return &Engine{
		config:   cfg,
		tokens:   tm,
		accounts: b.accounts,
		logger:   logger,
		metrics:  NewMetrics(),
		now:      time.Now,
	}, nil
}
