package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                     string
	DiscordToken            string
	DiscordGuildID          string
	TicketCategoryID        string
	LogChannelID            string
	PublishChannelID        string
	SessionTrigger          string
	StatusKeyword           string
	DatabaseURL             string
	RedisURL                string
	IdentityCacheTTL        time.Duration
	ArkAPIKey               string
	ArkModel                string
	ArkBaseURL              string
	ArkRegion               string
	SponsorRegistryURL      string
	SponsorRegistryToken    string
	JavaProfileURL          string
	BedrockProfileURL       string
	AuditWebhookURL         string
	AuditTimezone           string
	InspectionTimeout       time.Duration
	IdleThreshold           time.Duration
	SweepInterval           time.Duration
	SponsorWaitTimeout      time.Duration
	DenyListRefreshInterval time.Duration
	MaxStayDays             int
	HTTPAddr                string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	for _, d := range c.positiveDurationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.MaxStayDays <= 0 {
		return fmt.Errorf("MAX_STAY_DAYS must be positive, got %d", c.MaxStayDays)
	}
	if c.AuditTimezone == "" {
		return fmt.Errorf("AUDIT_TIMEZONE is required")
	}
	if _, err := time.LoadLocation(c.AuditTimezone); err != nil {
		return fmt.Errorf("AUDIT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "TICKET_CATEGORY_ID", value: c.TicketCategoryID},
		{name: "LOG_CHANNEL_ID", value: c.LogChannelID},
		{name: "SESSION_TRIGGER", value: c.SessionTrigger},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "ARK_API_KEY", value: c.ArkAPIKey},
		{name: "ARK_MODEL", value: c.ArkModel},
		{name: "SPONSOR_REGISTRY_URL", value: c.SponsorRegistryURL},
		{name: "SPONSOR_REGISTRY_TOKEN", value: c.SponsorRegistryToken},
	}
}

type durationEnvField struct {
	name  string
	value time.Duration
}

func (c *Config) positiveDurationChecks() []durationEnvField {
	return []durationEnvField{
		{name: "INSPECTION_TIMEOUT", value: c.InspectionTimeout},
		{name: "IDLE_THRESHOLD", value: c.IdleThreshold},
		{name: "SWEEP_INTERVAL", value: c.SweepInterval},
		{name: "SPONSOR_WAIT_TIMEOUT", value: c.SponsorWaitTimeout},
		{name: "DENYLIST_REFRESH_INTERVAL", value: c.DenyListRefreshInterval},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// EffectivePublishChannelID falls back to the log channel when no publish channel is set.
func (c *Config) EffectivePublishChannelID() string {
	if c.PublishChannelID != "" {
		return c.PublishChannelID
	}
	return c.LogChannelID
}

func (c *Config) AuditLocation() *time.Location {
	loc, err := time.LoadLocation(c.AuditTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
