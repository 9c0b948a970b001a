package services

import (
	"context"
	"errors"
	"fmt"

	"community-engagement-system/models"

	"gorm.io/gorm"
)

// GuildConfigProvider supplies per-guild tunables. The core only reads
// configuration; the config sync worker keeps the mirror table fresh.
type GuildConfigProvider interface {
	// Config never fails on a missing guild: it returns a config with
	// every subsystem disabled so the pipeline degrades to counters only.
	Config(ctx context.Context, guildID string) (*models.GuildConfig, error)
}

// GormConfigProvider reads the mirrored guild_configs table.
type GormConfigProvider struct {
	DB *gorm.DB
}

func NewGormConfigProvider(db *gorm.DB) *GormConfigProvider {
	return &GormConfigProvider{DB: db}
}

func (p *GormConfigProvider) Config(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	var cfg models.GuildConfig
	err := p.DB.WithContext(ctx).Where("guild_id = ?", guildID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.GuildConfig{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config for guild %s: %w", guildID, err)
	}
	return &cfg, nil
}

// StaticConfigProvider serves fixed configs (tests, one-off tooling).
type StaticConfigProvider struct {
	Configs map[string]*models.GuildConfig
}

func (p *StaticConfigProvider) Config(_ context.Context, guildID string) (*models.GuildConfig, error) {
	if cfg, ok := p.Configs[guildID]; ok {
		return cfg, nil
	}
	return &models.GuildConfig{GuildID: guildID}, nil
}
