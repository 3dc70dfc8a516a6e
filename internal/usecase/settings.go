package usecase

import (
	"context"

	"crystallize-agent/internal/repository"
)

// Settings is the ungrouped pair of records persisted independently of
// any conversation: the active identity name and the theme preference.
type Settings struct {
	UserName string `json:"userName"`
	Theme    string `json:"theme"`
}

// GetSettings reads both settings records; a missing record reads as an
// empty value.
func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	userName, _, err := s.records.GetRecord(ctx, repository.SettingsUsernameKey())
	if err != nil {
		return Settings{}, newError(ErrorInternal, "settings_read_error", err)
	}
	theme, _, err := s.records.GetRecord(ctx, repository.SettingsThemeKey())
	if err != nil {
		return Settings{}, newError(ErrorInternal, "settings_read_error", err)
	}
	return Settings{UserName: userName, Theme: theme}, nil
}

// PutSettings writes both settings records. An empty value removes the
// record, which is how logout forgets the stored name.
func (s *Service) PutSettings(ctx context.Context, settings Settings) error {
	if err := s.putOrDelete(ctx, repository.SettingsUsernameKey(), settings.UserName); err != nil {
		return newError(ErrorInternal, "settings_write_error", err)
	}
	if err := s.putOrDelete(ctx, repository.SettingsThemeKey(), settings.Theme); err != nil {
		return newError(ErrorInternal, "settings_write_error", err)
	}
	return nil
}

func (s *Service) putOrDelete(ctx context.Context, key, value string) error {
	if value == "" {
		return s.records.DeleteRecord(ctx, key)
	}
	return s.records.PutRecord(ctx, key, value)
}
