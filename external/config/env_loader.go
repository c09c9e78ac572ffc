package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/nyukoku/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                     string        `env:"ENV" envDefault:"production"`
	DiscordToken            string        `env:"DISCORD_TOKEN,required"`
	DiscordGuildID          string        `env:"DISCORD_GUILD_ID,required"`
	TicketCategoryID        string        `env:"TICKET_CATEGORY_ID,required"`
	LogChannelID            string        `env:"LOG_CHANNEL_ID,required"`
	PublishChannelID        string        `env:"PUBLISH_CHANNEL_ID"`
	SessionTrigger          string        `env:"SESSION_TRIGGER" envDefault:"ID:CAS"`
	StatusKeyword           string        `env:"ADMIN_KEYWORD" envDefault:"!status"`
	DatabaseURL             string        `env:"DATABASE_URL,required"`
	RedisURL                string        `env:"REDIS_URL"`
	IdentityCacheTTL        time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"24h"`
	ArkAPIKey               string        `env:"ARK_API_KEY,required"`
	ArkModel                string        `env:"ARK_MODEL,required"`
	ArkBaseURL              string        `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion               string        `env:"ARK_REGION" envDefault:"cn-beijing"`
	SponsorRegistryURL      string        `env:"SPONSOR_REGISTRY_URL,required"`
	SponsorRegistryToken    string        `env:"SPONSOR_REGISTRY_TOKEN,required"`
	JavaProfileURL          string        `env:"JAVA_PROFILE_URL" envDefault:"https://api.mojang.com/users/profiles/minecraft/"`
	BedrockProfileURL       string        `env:"BEDROCK_PROFILE_URL" envDefault:"https://playerdb.co/api/player/xbox/"`
	AuditWebhookURL         string        `env:"AUDIT_WEBHOOK_URL"`
	AuditTimezone           string        `env:"AUDIT_TIMEZONE" envDefault:"Asia/Tokyo"`
	InspectionTimeout       time.Duration `env:"INSPECTION_TIMEOUT" envDefault:"60s"`
	IdleThreshold           time.Duration `env:"IDLE_THRESHOLD" envDefault:"10m"`
	SweepInterval           time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	SponsorWaitTimeout      time.Duration `env:"SPONSOR_WAIT_TIMEOUT" envDefault:"72h"`
	DenyListRefreshInterval time.Duration `env:"DENYLIST_REFRESH_INTERVAL" envDefault:"5m"`
	MaxStayDays             int           `env:"MAX_STAY_DAYS" envDefault:"31"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:":3000"`
}

func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file; continuing with process environment", "error", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                     raw.Env,
		DiscordToken:            raw.DiscordToken,
		DiscordGuildID:          raw.DiscordGuildID,
		TicketCategoryID:        raw.TicketCategoryID,
		LogChannelID:            raw.LogChannelID,
		PublishChannelID:        raw.PublishChannelID,
		SessionTrigger:          raw.SessionTrigger,
		StatusKeyword:           raw.StatusKeyword,
		DatabaseURL:             raw.DatabaseURL,
		RedisURL:                raw.RedisURL,
		IdentityCacheTTL:        raw.IdentityCacheTTL,
		ArkAPIKey:               raw.ArkAPIKey,
		ArkModel:                raw.ArkModel,
		ArkBaseURL:              raw.ArkBaseURL,
		ArkRegion:               raw.ArkRegion,
		SponsorRegistryURL:      raw.SponsorRegistryURL,
		SponsorRegistryToken:    raw.SponsorRegistryToken,
		JavaProfileURL:          raw.JavaProfileURL,
		BedrockProfileURL:       raw.BedrockProfileURL,
		AuditWebhookURL:         raw.AuditWebhookURL,
		AuditTimezone:           raw.AuditTimezone,
		InspectionTimeout:       raw.InspectionTimeout,
		IdleThreshold:           raw.IdleThreshold,
		SweepInterval:           raw.SweepInterval,
		SponsorWaitTimeout:      raw.SponsorWaitTimeout,
		DenyListRefreshInterval: raw.DenyListRefreshInterval,
		MaxStayDays:             raw.MaxStayDays,
		HTTPAddr:                raw.HTTPAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type storageEnvConfig struct {
	Env                     string        `env:"ENV" envDefault:"production"`
	DatabaseURL             string        `env:"DATABASE_URL,required"`
	DenyListRefreshInterval time.Duration `env:"DENYLIST_REFRESH_INTERVAL" envDefault:"5m"`
}

// LoadStorage reads only the settings needed by the admin commands.
func LoadStorage() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file; continuing with process environment", "error", err)
	}

	var raw storageEnvConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if raw.DenyListRefreshInterval <= 0 {
		return nil, fmt.Errorf("DENYLIST_REFRESH_INTERVAL must be positive, got %s", raw.DenyListRefreshInterval)
	}
	return &internalconfig.Config{
		Env:                     raw.Env,
		DatabaseURL:             raw.DatabaseURL,
		DenyListRefreshInterval: raw.DenyListRefreshInterval,
	}, nil
}
