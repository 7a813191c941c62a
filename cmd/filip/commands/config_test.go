package commands_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SystemsPurge/FiLiP/cmd/filip/commands"
)

func TestNewConfigCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewConfigCommand()
	assert.Equal(t, "config", cmd.Use)
	assert.Equal(t, "Manage CLI configuration", cmd.Short)

	// Check subcommands are added
	subcommands := cmd.Commands()
	assert.Len(t, subcommands, 3)

	commandNames := make([]string, 0, len(subcommands))
	for _, subcmd := range subcommands {
		commandNames = append(commandNames, subcmd.Name())
	}

	assert.Contains(t, commandNames, "show")
	assert.Contains(t, commandNames, "use-context")
	assert.Contains(t, commandNames, "delete-context")
}

func TestConfigShowCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConfigCommand()
	cmd := findSubcommand(root, "show")
	assert.Equal(t, "show", cmd.Use)
	assert.Equal(t, "Show current configuration", cmd.Short)
	assert.NotNil(t, cmd.RunE)
}

func TestConfigUseContextCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConfigCommand()
	cmd := findSubcommand(root, "use-context")
	assert.Equal(t, "use-context NAME", cmd.Use)
	assert.Equal(t, "Switch the current context", cmd.Short)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)
}

func TestConfigDeleteContextCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConfigCommand()
	cmd := findSubcommand(root, "delete-context")
	assert.Equal(t, "delete-context NAME", cmd.Use)
	assert.Equal(t, "Delete a context", cmd.Short)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)
}
