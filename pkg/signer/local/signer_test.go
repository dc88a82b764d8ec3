package local

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	t.Run("sign and verify", func(t *testing.T) {
		signer, err := GenerateSigner()
		require.NoError(t, err)

		message := []byte("test message")
		signature, err := signer.Sign(message)
		require.NoError(t, err)
		require.Len(t, signature, 64)

		pubKey, err := signer.GetPublic()
		require.NoError(t, err)
		valid, err := pubKey.Verify(message, signature)
		require.NoError(t, err)
		require.True(t, valid)
	})

	t.Run("save and load", func(t *testing.T) {
		dir := t.TempDir()
		signer, err := GenerateSigner()
		require.NoError(t, err)
		require.NoError(t, signer.Save(dir))

		loaded, err := Load(dir)
		require.NoError(t, err)
		want, _ := signer.GetPublic()
		got, _ := loaded.GetPublic()
		require.True(t, want.Equals(got))

		require.Error(t, signer.Save(dir), "existing key file must not be overwritten")
	})

	t.Run("load missing", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
	})
}
