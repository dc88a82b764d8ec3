package celestia

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"cosmossdk.io/log"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingNodeAPI answers every Submit with err.
type failingNodeAPI struct {
	err error
}

func (f *failingNodeAPI) Submit(context.Context, [][]byte, float64, []byte) ([][]byte, error) {
	return nil, f.err
}

func TestDAErrorsSurviveRPC(t *testing.T) {
	tests := []struct {
		name   string
		served error
		want   error
	}{
		{"blob too big", ErrBlobSizeOverLimit, ErrBlobSizeOverLimit},
		{"tx timed out", ErrTxTimedOut, ErrTxTimedOut},
		{"already in mempool", ErrTxAlreadyInMempool, ErrTxAlreadyInMempool},
		{"account sequence", ErrTxIncorrectAccountSequence, ErrTxIncorrectAccountSequence},
		{"context canceled", ErrContextCanceled, ErrContextCanceled},
		{"height from future", ErrHeightFromFuture, ErrHeightFromFuture},
		{"message only", errors.New("rpc: blob size over limit: 2097152 > 1974272"), ErrBlobSizeOverLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := jsonrpc.NewServer(jsonrpc.WithServerErrors(getKnownErrorsMapping()))
			rpc.Register("da", &failingNodeAPI{err: tt.served})
			srv := httptest.NewServer(rpc)
			defer srv.Close()

			backend, err := NewRPCBackend(t.Context(), log.NewNopLogger(), srv.URL, "", -1)
			require.NoError(t, err)
			defer backend.Close()

			_, err = backend.Submit(t.Context(), []byte("blob"), testNamespace(t).Bytes())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			for _, other := range knownErrors {
				if other != tt.want {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(ErrBlobSizeOverLimit))
	assert.False(t, isRetryable(&DAError{Code: StatusTooBig, Message: "too big"}))
	assert.True(t, isRetryable(ErrTxTimedOut))
	assert.True(t, isRetryable(errors.New("connection refused")))
}
