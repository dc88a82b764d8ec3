package cmd

import (
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/spf13/cobra"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
)

const flagWithKey = "with-key"

// InitCmd returns the command initializing a home directory with a default
// configuration file and an empty whitelist.
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: fmt.Sprintf("Initialize a new %s file", config.ConfigName),
		Long: fmt.Sprintf(`This command initializes a new %s file in the config directory of the home path.
It also creates an empty whitelist. With --%s, a client signing key is generated
and its public key is added to the whitelist.`, config.ConfigName, flagWithKey),
		RunE: func(cmd *cobra.Command, args []string) error {
			homePath, err := cmd.Flags().GetString(config.FlagRootDir)
			if err != nil {
				return fmt.Errorf("error reading home flag: %w", err)
			}

			if homePath == "" {
				return fmt.Errorf("home path is required")
			}

			// Create a config with default values
			cfg := config.DefaultConfig
			cfg.RootDir = homePath
			instrumentation := *config.DefaultConfig.Instrumentation
			cfg.Instrumentation = &instrumentation

			if _, err := os.Stat(cfg.ConfigPath()); err == nil {
				return fmt.Errorf("%s file already exists in the specified directory", config.ConfigName)
			}

			if err := config.EnsureRoot(homePath); err != nil {
				return err
			}

			var keys []crypto.PubKey
			withKey, err := cmd.Flags().GetBool(flagWithKey)
			if err != nil {
				return fmt.Errorf("error reading %s flag: %w", flagWithKey, err)
			}
			if withKey {
				pub, err := generateKey(cfg.SignerDir())
				if err != nil {
					return err
				}
				keys = append(keys, pub)
			}

			if _, err := os.Stat(cfg.WhitelistFile()); os.IsNotExist(err) {
				if err := whitelist.Save(cfg.WhitelistFile(), keys); err != nil {
					return fmt.Errorf("error writing whitelist: %w", err)
				}
			} else if len(keys) > 0 {
				if err := addToWhitelist(cfg.WhitelistFile(), keys...); err != nil {
					return err
				}
			}

			if err := cfg.SaveAsYaml(); err != nil {
				return fmt.Errorf("error writing %s file: %w", config.ConfigName, err)
			}

			cmd.Printf("Initialized %s file in %s\n", config.ConfigName, cfg.ConfigPath())
			cmd.Printf("Whitelist: %s\n", cfg.WhitelistFile())
			return nil
		},
	}
	cmd.Flags().Bool(flagWithKey, false, "generate a client signing key and whitelist it")
	return cmd
}

// generateKey creates a signing key in dir and returns its public key.
func generateKey(dir string) (crypto.PubKey, error) {
	signer, err := local.GenerateSigner()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := signer.Save(dir); err != nil {
		return nil, err
	}
	return signer.GetPublic()
}
