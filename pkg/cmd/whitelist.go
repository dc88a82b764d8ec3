package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/spf13/cobra"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
)

// WhitelistCmd returns a command for managing the batch signer whitelist.
// A running node picks up changes on SIGHUP.
func WhitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the keys allowed to submit batches",
	}

	cmd.AddCommand(whitelistAddCmd())
	cmd.AddCommand(whitelistRemoveCmd())
	cmd.AddCommand(whitelistListCmd())

	for _, c := range cmd.Commands() {
		c.Flags().String(config.FlagWhitelistPath, config.DefaultConfig.Sequencer.WhitelistPath, "path of the batch signer whitelist")
	}
	return cmd
}

func whitelistAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [hex-public-key...]",
		Short: "Add public keys to the whitelist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load node config: %w", err)
			}
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			if err := addToWhitelist(nodeConfig.WhitelistFile(), keys...); err != nil {
				return err
			}
			cmd.Printf("Added %d key(s) to %s\n", len(keys), nodeConfig.WhitelistFile())
			return nil
		},
	}
}

func whitelistRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [hex-public-key...]",
		Short: "Remove public keys from the whitelist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load node config: %w", err)
			}
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}
			wl, err := whitelist.Load(nodeConfig.WhitelistFile())
			if err != nil {
				return err
			}

			remove, err := whitelist.New(keys...)
			if err != nil {
				return err
			}
			var kept []crypto.PubKey
			for _, k := range wl.Keys() {
				if !remove.Contains(k) {
					kept = append(kept, k)
				}
			}
			if len(kept) == wl.Len() {
				return errors.New("none of the keys is whitelisted")
			}
			if err := whitelist.Save(nodeConfig.WhitelistFile(), kept); err != nil {
				return err
			}
			cmd.Printf("Removed %d key(s) from %s\n", wl.Len()-len(kept), nodeConfig.WhitelistFile())
			return nil
		},
	}
}

func whitelistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the whitelisted public keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load node config: %w", err)
			}
			wl, err := whitelist.Load(nodeConfig.WhitelistFile())
			if err != nil {
				return err
			}
			for _, k := range wl.Keys() {
				hexKey, err := whitelist.EncodeKey(k)
				if err != nil {
					return err
				}
				cmd.Println(hexKey)
			}
			return nil
		},
	}
}

func parseKeys(args []string) ([]crypto.PubKey, error) {
	keys := make([]crypto.PubKey, 0, len(args))
	for _, arg := range args {
		k, err := whitelist.ParseKey(arg)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// addToWhitelist appends keys to the whitelist file, creating it when missing.
// Keys already present are skipped.
func addToWhitelist(path string, keys ...crypto.PubKey) error {
	current := []crypto.PubKey{}
	wl, err := whitelist.Load(path)
	switch {
	case err == nil:
		current = wl.Keys()
	case errors.Is(err, os.ErrNotExist):
		wl, err = whitelist.New()
		if err != nil {
			return err
		}
	default:
		return err
	}
	for _, k := range keys {
		if !wl.Contains(k) {
			current = append(current, k)
		}
	}
	return whitelist.Save(path, current)
}
