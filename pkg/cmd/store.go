package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
)

// StoreCmd returns a command for inspecting and resetting the block database.
// Both subcommands require the node to be stopped.
func StoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect or reset the block database",
	}
	cmd.AddCommand(storeInfoCmd())
	cmd.AddCommand(StoreUnsafeCleanCmd())
	return cmd
}

func storeInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the block height and the DA sync progress",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			nodeConfig, err := ParseConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			kv, err := store.NewDefaultKVStore(nodeConfig.RootDir, nodeConfig.DBPath, DBName)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			db, err := store.Open(ctx, kv)
			if err != nil {
				return multierr.Append(err, kv.Close())
			}
			defer func() {
				err = multierr.Append(err, db.Close())
			}()

			height, err := db.Height(ctx)
			if err != nil {
				return err
			}
			synced, err := db.GetSyncedHeight(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 0, 2, ' ', 0)
			_, err1 := fmt.Fprintf(w, "height:\t%d\n", height)
			_, err2 := fmt.Fprintf(w, "synced height:\t%d\n", synced)
			if height > 0 {
				b, err := db.GetBlock(ctx, height)
				if err != nil {
					return err
				}
				_, err3 := fmt.Fprintf(w, "last block id:\t%s\n", b.ID())
				err1 = errors.Join(err1, err3)
			}
			if synced > 0 {
				daHeight, err := db.GetDAHeight(ctx, synced)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				if err == nil {
					_, err4 := fmt.Fprintf(w, "last DA height:\t%d\n", daHeight)
					err2 = errors.Join(err2, err4)
				}
			}
			return errors.Join(err1, err2, w.Flush())
		},
	}
	config.AddFlags(cmd)
	return cmd
}

// UnsafeCleanDataDir removes all contents of the specified data directory.
// It does not remove the data directory itself, only its contents.
func UnsafeCleanDataDir(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			// Data directory does not exist, nothing to clean.
			return nil
		}
		return fmt.Errorf("failed to read data directory: %w", err)
	}
	for _, entry := range entries {
		entryPath := filepath.Join(dataDir, entry.Name())
		err := os.RemoveAll(entryPath)
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", entryPath, err)
		}
	}
	return nil
}

// StoreUnsafeCleanCmd returns a command removing all contents of the data
// directory. Blocks not yet confirmed on the DA layer are lost.
func StoreUnsafeCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsafe-clean",
		Short: "Remove all contents of the data directory (DANGEROUS: cannot be undone)",
		Long: `Removes all files and subdirectories in the node's data directory, including
the block database and the local DA database.
This operation is unsafe and cannot be undone. Use with caution!`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := ParseConfig(cmd)
			if err != nil {
				return fmt.Errorf("error parsing config: %w", err)
			}
			if nodeConfig.DBPath == "" {
				return fmt.Errorf("data directory not found in node configuration")
			}
			dataDir := nodeConfig.DBPath
			if !filepath.IsAbs(dataDir) {
				dataDir = filepath.Join(nodeConfig.RootDir, dataDir)
			}

			if err := UnsafeCleanDataDir(dataDir); err != nil {
				return err
			}
			cmd.Printf("All contents of the data directory at %s have been removed.\n", dataDir)
			return nil
		},
	}
	config.AddFlags(cmd)
	return cmd
}
