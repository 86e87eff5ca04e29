package cache

import (
	"strings"
	"time"

	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
)

const defaultSettingsTTL = 45 * time.Second

// SettingsResolverCache stores secret-key lookups on the public API hot
// path. Entries are short-lived; a key rotation additionally invalidates
// the old key immediately.
type SettingsResolverCache interface {
	GetBySecretKey(secretKey string) (*settingsdomain.PageSettings, bool)
	SetBySecretKey(secretKey string, settings *settingsdomain.PageSettings)
	InvalidateSecretKey(secretKey string)
}

type settingsResolverCache struct {
	settings Cache[string, *settingsdomain.PageSettings]
	ttl      time.Duration
}

func NewSettingsResolverCache() SettingsResolverCache {
	return &settingsResolverCache{
		settings: NewTTLCache[string, *settingsdomain.PageSettings](),
		ttl:      defaultSettingsTTL,
	}
}

func (c *settingsResolverCache) GetBySecretKey(secretKey string) (*settingsdomain.PageSettings, bool) {
	key := cacheKey(secretKey)
	if key == "" {
		return nil, false
	}
	return c.settings.Get(key)
}

func (c *settingsResolverCache) SetBySecretKey(secretKey string, settings *settingsdomain.PageSettings) {
	if settings == nil {
		return
	}
	key := cacheKey(secretKey)
	if key == "" {
		return
	}
	c.settings.Set(key, settings, c.ttl)
}

func (c *settingsResolverCache) InvalidateSecretKey(secretKey string) {
	key := cacheKey(secretKey)
	if key == "" {
		return
	}
	c.settings.Delete(key)
}

func cacheKey(part string) string {
	return strings.TrimSpace(part)
}
