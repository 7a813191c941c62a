package commands_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SystemsPurge/FiLiP/cmd/filip/commands"
)

func TestNewLoginCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewLoginCommand()
	assert.Equal(t, "login", cmd.Use)
	assert.Equal(t, "Log in to a FIWARE platform", cmd.Short)
	assert.NotNil(t, cmd.RunE)

	// Check flags
	flags := []string{
		"name", "endpoint", "token-url", "username", "password",
		"client-id", "client-secret", "service", "service-path",
		"iota-url", "quantumleap-url",
	}

	for _, flagName := range flags {
		flag := cmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "Flag %s should exist", flagName)
	}

	// Check shorthands
	assert.Equal(t, "e", cmd.Flags().Lookup("endpoint").Shorthand)
	assert.Equal(t, "u", cmd.Flags().Lookup("username").Shorthand)
	assert.Equal(t, "p", cmd.Flags().Lookup("password").Shorthand)
}

func TestNewLogoutCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewLogoutCommand()
	assert.Equal(t, "logout", cmd.Use)
	assert.Equal(t, "Log out from the current context", cmd.Short)
	assert.NotNil(t, cmd.RunE)
}
