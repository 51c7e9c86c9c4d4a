package gateway

import (
	"context"
	"errors"
	"log"
	"strconv"

	"loyalpay/internal/domain"
	"loyalpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvalidSettings = errors.New("invalid gateway settings")

// Settings are the runtime limits of the bank gateway.
type Settings struct {
	Enabled bool            `json:"enabled"`
	MinSum  decimal.Decimal `json:"minSum"`
	MaxSum  decimal.Decimal `json:"maxSum"`
}

func (s Settings) Validate() error {
	if !s.MinSum.IsPositive() || s.MaxSum.LessThan(s.MinSum) {
		return ErrInvalidSettings
	}
	return nil
}

// SettingsStore overlays values from system_settings on configured defaults.
type SettingsStore struct {
	repo     *repository.SettingRepository
	defaults Settings
}

func NewSettingsStore(db *gorm.DB, defaults Settings) *SettingsStore {
	return &SettingsStore{repo: repository.NewSettingRepository(db), defaults: defaults}
}

func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	values, err := s.repo.GetMany(ctx, domain.SettingGatewayEnabled, domain.SettingGatewayMinSum, domain.SettingGatewayMaxSum)
	if err != nil {
		return Settings{}, err
	}
	out := s.defaults
	if v, ok := values[domain.SettingGatewayEnabled]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			out.Enabled = b
		} else {
			log.Printf("[OSMP] ignoring bad setting %s=%q", domain.SettingGatewayEnabled, v)
		}
	}
	if v, ok := values[domain.SettingGatewayMinSum]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			out.MinSum = d
		} else {
			log.Printf("[OSMP] ignoring bad setting %s=%q", domain.SettingGatewayMinSum, v)
		}
	}
	if v, ok := values[domain.SettingGatewayMaxSum]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			out.MaxSum = d
		} else {
			log.Printf("[OSMP] ignoring bad setting %s=%q", domain.SettingGatewayMaxSum, v)
		}
	}
	return out, nil
}

func (s *SettingsStore) Save(ctx context.Context, in Settings) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, domain.SettingGatewayEnabled, strconv.FormatBool(in.Enabled)); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, domain.SettingGatewayMinSum, in.MinSum.StringFixed(2)); err != nil {
		return err
	}
	return s.repo.Set(ctx, domain.SettingGatewayMaxSum, in.MaxSum.StringFixed(2))
}
