package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

// Config is the process-wide immutable configuration, loaded once from the
// environment with the RUDE_ prefix.
type Config struct {
	TelegramAPIToken string   `env:"TOKEN,required"`
	ChatID           int64    `env:"CHAT_ID,required"`
	LogLevel         int      `env:"LOG_LEVEL,default=4"`
	EnabledHandlers  []string `env:"HANDLERS,default=commands,gatekeeper"`
	MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`

	// Tunables of the restriction lifecycle. MinRestrictSeconds floors every
	// parsed restriction duration, PunishmentSeconds is the fixed read-only
	// penalty for unauthorized commands, SoftKickCooldownSeconds is how long
	// a timed-out newbie stays kicked before rejoining is possible.
	MinRestrictSeconds      int64 `env:"MIN_RESTRICT_SECONDS,default=30"`
	PunishmentSeconds       int64 `env:"PUNISHMENT_SECONDS,default=300"`
	SoftKickCooldownSeconds int64 `env:"SOFT_KICK_COOLDOWN_SECONDS,default=30"`
	SelfDestructSeconds     int64 `env:"SELF_DESTRUCT_SECONDS,default=30"`
}

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("RUDE_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
