package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
)

func TestInitCmd(t *testing.T) {
	home := t.TempDir()

	out, err := runRoot("init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, config.ConfigName)

	configPath := filepath.Join(home, config.AppConfigDir, config.ConfigName)
	assert.FileExists(t, configPath)

	wl, err := whitelist.Load(filepath.Join(home, config.DefaultWhitelistPath))
	require.NoError(t, err)
	assert.Zero(t, wl.Len())
	assert.NoFileExists(t, filepath.Join(home, config.DefaultSignerPath, local.KeyFileName))

	_, err = runRoot("init", "--home", home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCmdWithKey(t *testing.T) {
	home := t.TempDir()

	_, err := runRoot("init", "--home", home, "--with-key")
	require.NoError(t, err)

	signer, err := local.Load(filepath.Join(home, config.DefaultSignerPath))
	require.NoError(t, err)
	pub, err := signer.GetPublic()
	require.NoError(t, err)

	wl, err := whitelist.Load(filepath.Join(home, config.DefaultWhitelistPath))
	require.NoError(t, err)
	assert.Equal(t, 1, wl.Len())
	assert.True(t, wl.Contains(pub), "generated key is whitelisted")
}

func TestInitCmdWrittenConfigLoads(t *testing.T) {
	home := t.TempDir()
	_, err := runRoot("init", "--home", home)
	require.NoError(t, err)

	cmd := StartCmd()
	config.AddGlobalFlags(cmd, "")
	require.NoError(t, cmd.ParseFlags([]string{"--home", home}))

	cfg, err := ParseConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, home, cfg.RootDir)
	assert.Equal(t, config.DefaultConfig.Sequencer.BlockTime, cfg.Sequencer.BlockTime)
	assert.Equal(t, config.DefaultConfig.DA.Namespace, cfg.DA.Namespace)
}
