package repository

import "context"

// Record keys follow the original client-side layout: two named documents
// per identity plus a pair of ungrouped settings records.
const (
	settingsUsernameKey = "crystallize_username"
	settingsThemeKey    = "crystallize_theme"
)

func chatRecordKey(identity string) string {
	return "crystal_chat_" + identity
}

func knowledgeRecordKey(identity string) string {
	return "crystal_db_" + identity
}

// SettingsUsernameKey and SettingsThemeKey address the two settings
// records persisted independently of any conversation.
func SettingsUsernameKey() string { return settingsUsernameKey }
func SettingsThemeKey() string    { return settingsThemeKey }

// RecordStore persists named text records. *Client satisfies it.
type RecordStore interface {
	GetRecord(ctx context.Context, key string) (string, bool, error)
	PutRecord(ctx context.Context, key, body string) error
	DeleteRecord(ctx context.Context, key string) error
}
