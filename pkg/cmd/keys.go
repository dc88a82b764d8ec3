package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
)

// KeysCmd returns a command for managing keys.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage client signing keys",
	}

	cmd.AddCommand(generateKeyCmd())
	cmd.AddCommand(showKeyCmd())

	return cmd
}

func generateKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new Ed25519 signing key",
		Long: `Generate a new Ed25519 key used to sign transaction batches.
The key is written unencrypted to signer.json in the signer directory.
An existing key is never overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load node config: %w", err)
			}

			pub, err := generateKey(nodeConfig.SignerDir())
			if err != nil {
				return err
			}
			hexKey, err := whitelist.EncodeKey(pub)
			if err != nil {
				return err
			}

			cmd.Printf("Key saved to %s\n", filepath.Join(nodeConfig.SignerDir(), local.KeyFileName))
			cmd.Println(hexKey)
			return nil
		},
	}
	cmd.Flags().String(config.FlagSignerPath, config.DefaultConfig.Signer.Path, "directory of the client signing key")
	return cmd
}

func showKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the public key of the signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load node config: %w", err)
			}

			signer, err := local.Load(nodeConfig.SignerDir())
			if err != nil {
				return err
			}
			pub, err := signer.GetPublic()
			if err != nil {
				return err
			}
			hexKey, err := whitelist.EncodeKey(pub)
			if err != nil {
				return err
			}

			cmd.Println(hexKey)
			return nil
		},
	}
	cmd.Flags().String(config.FlagSignerPath, config.DefaultConfig.Signer.Path, "directory of the client signing key")
	return cmd
}
