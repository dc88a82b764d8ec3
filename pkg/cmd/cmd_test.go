package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
)

// newRootCmd creates a root command holding every client command. Cobra keeps
// flag state between executions, so each test run needs a fresh tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "da-sequencer-test"}
	// Prevent cobra from printing errors, so we can assert on them
	root.SilenceErrors = true
	// Prevent cobra from printing usage, so we can assert on output
	root.SilenceUsage = true

	config.AddGlobalFlags(root, "")
	root.AddCommand(InitCmd(), KeysCmd(), WhitelistCmd(), DACmd(), StoreCmd())
	return root
}

// executeCommand runs cmd with args and returns its combined output.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if args == nil {
		// cobra reads os.Args when args are nil
		args = []string{}
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func runRoot(args ...string) (string, error) {
	return executeCommand(newRootCmd(), args...)
}

// lastLine returns the last non-empty line of out.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func newHexKey(t *testing.T) string {
	t.Helper()
	signer, err := local.GenerateSigner()
	require.NoError(t, err)
	pub, err := signer.GetPublic()
	require.NoError(t, err)
	hexKey, err := whitelist.EncodeKey(pub)
	require.NoError(t, err)
	return hexKey
}
