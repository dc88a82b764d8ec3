package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/node"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
)

const flagDAHeight = "height"

// DACmd returns a command for inspecting the DA layer.
func DACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "da",
		Short: "Inspect block digests published on the DA layer",
	}
	cmd.AddCommand(daBlobsCmd())
	return cmd
}

func daBlobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blobs",
		Short: "Print the block digests published at a DA height",
		Long: `Print the block digests published in the sequencer namespace at a DA height.
The local backend can not be read while a node holds its database.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			nodeConfig, err := ParseConfig(cmd)
			if err != nil {
				return err
			}
			height, err := cmd.Flags().GetUint64(flagDAHeight)
			if err != nil {
				return err
			}
			logger := SetupLogger(nodeConfig.Log)

			backend, err := node.NewBackend(cmd.Context(), nodeConfig, logger)
			if err != nil {
				return fmt.Errorf("failed to create DA backend: %w", err)
			}
			defer func() {
				err = multierr.Append(err, backend.Close())
			}()

			namespace, err := celestia.ParseNamespace(nodeConfig.DA.Namespace)
			if err != nil {
				return err
			}
			client, _ := celestia.New(logger, backend, namespace, nil, celestia.Options{})
			defer client.Close()

			blobs, err := client.GetBlobsAtHeight(cmd.Context(), height)
			if err != nil {
				return err
			}
			return printBlobs(cmd.OutOrStdout(), height, blobs)
		},
	}
	config.AddFlags(cmd)
	cmd.Flags().Uint64(flagDAHeight, 1, "DA height to read")
	return cmd
}

func printBlobs(out io.Writer, height uint64, blobs []celestia.CelestiaBlob) error {
	w := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(w, "DA height %d: %d blob(s)\n", height, len(blobs)); err != nil {
		return err
	}
	for i, blob := range blobs {
		for _, d := range blob.Digests {
			if _, err := fmt.Fprintf(w, "%d\t%d\t%s\n", i, d.Height, d.ID); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
