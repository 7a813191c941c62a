package commands

import (
	"fmt"
	"sync"
	"time"
)

// ConfigPersister implements the auth.ConfigPersister interface,
// writing refreshed tokens back to the named context so later
// invocations reuse them.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// UpdateBrokerToken updates the token state of the named context in
// the config file.
func (p *ConfigPersister) UpdateBrokerToken(contextName, token string, expiresAt time.Time, refreshToken string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config := loadConfig()

	contextConfig, exists := config.Contexts[contextName]
	if !exists {
		return fmt.Errorf("%w: %q", ErrContextNotFound, contextName)
	}

	contextConfig.Token = token
	if !expiresAt.IsZero() {
		contextConfig.TokenExpiresAt = &expiresAt
	}

	if refreshToken != "" {
		contextConfig.RefreshToken = refreshToken
	}

	now := time.Now()
	contextConfig.LastRefreshed = &now

	return saveConfigStruct(config)
}
