package node

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"cosmossdk.io/log"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	rpcclient "github.com/movementlabsxyz/da-sequencer/pkg/rpc/client"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
	"github.com/movementlabsxyz/da-sequencer/types"
)

// newTestConfig returns a configuration for an in-memory node whose
// whitelist trusts signer.
func newTestConfig(t *testing.T, signer *local.Signer) config.Config {
	t.Helper()
	cfg := config.DefaultConfig
	cfg.RootDir = t.TempDir()
	cfg.GRPC.ListenAddress = "127.0.0.1:0"
	cfg.Sequencer.BlockTime = config.DurationWrapper{Duration: 50 * time.Millisecond}
	cfg.Sequencer.HeartbeatInterval = config.DurationWrapper{Duration: 50 * time.Millisecond}
	cfg.DA.Backend = config.DABackendMemory
	cfg.DA.SubmitBackoff = config.DurationWrapper{Duration: 10 * time.Millisecond}
	instrumentation := *config.DefaultInstrumentationConfig()
	cfg.Instrumentation = &instrumentation

	var keys []crypto.PubKey
	if signer != nil {
		pub, err := signer.GetPublic()
		require.NoError(t, err)
		keys = append(keys, pub)
	}
	require.NoError(t, whitelist.Save(cfg.WhitelistFile(), keys))
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestKV() ds.Batching {
	return dssync.MutexWrap(ds.NewMapDatastore())
}

type runningNode struct {
	node   *Node
	url    string
	errCh  chan error
	cancel context.CancelFunc
}

func startNode(t *testing.T, cfg config.Config, kv ds.Batching, backend celestia.Backend) *runningNode {
	t.Helper()
	n, err := NewNode(t.Context(), cfg, kv, backend, DefaultMetricsProvider(cfg.Instrumentation), log.NewTestLogger(t))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	r := &runningNode{
		node:   n,
		url:    "http://" + listener.Addr().String(),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		r.errCh <- n.Serve(ctx, listener)
	}()
	t.Cleanup(cancel)
	return r
}

func (r *runningNode) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
		return nil
	}
}

func TestNodeEndToEnd(t *testing.T) {
	signer, err := local.GenerateSigner()
	require.NoError(t, err)
	cfg := newTestConfig(t, signer)
	backend := celestia.NewMemoryBackend(cfg.DA.MaxBlobSize)
	r := startNode(t, cfg, newTestKV(), backend)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	client := rpcclient.NewClient(r.url, signer)

	txs := types.Transactions{
		types.NewTransaction([]byte("first"), 0, 1),
		types.NewTransaction([]byte("second"), 0, 2),
	}
	require.NoError(t, client.BatchWrite(ctx, txs))

	stream, err := client.StreamReadFromHeight(ctx, 1)
	require.NoError(t, err)
	defer stream.Close()
	require.True(t, stream.Next(), "stream error: %v", stream.Err())
	assert.Equal(t, types.BlockHeight(1), stream.Block().Height())
	assert.Equal(t, txs, stream.Block().Transactions())

	require.Eventually(t, func() bool {
		synced, err := r.node.Store().GetSyncedHeight(ctx)
		return err == nil && synced == 1
	}, 5*time.Second, 20*time.Millisecond, "block 1 is confirmed on the DA layer")

	status, err := r.node.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthStatus{Status: "ok", Height: 1, SyncedHeight: 1}, status)

	r.cancel()
	require.NoError(t, r.wait(t))
	assert.False(t, stream.Next())
	assert.Equal(t, uint64(1), backend.Height())
}

func TestNodeRejectsUnknownSigners(t *testing.T) {
	cfg := newTestConfig(t, nil)
	r := startNode(t, cfg, newTestKV(), celestia.NewMemoryBackend(cfg.DA.MaxBlobSize))

	outsider, err := local.GenerateSigner()
	require.NoError(t, err)
	err = rpcclient.NewClient(r.url, outsider).BatchWrite(t.Context(), types.Transactions{types.NewTransaction([]byte("x"), 0, 0)})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	// Trusting the key takes effect after a reload.
	pub, err := outsider.GetPublic()
	require.NoError(t, err)
	require.NoError(t, whitelist.Save(cfg.WhitelistFile(), []crypto.PubKey{pub}))
	require.NoError(t, r.node.ReloadWhitelist())
	require.NoError(t, rpcclient.NewClient(r.url, outsider).BatchWrite(t.Context(), types.Transactions{types.NewTransaction([]byte("x"), 0, 0)}))
}

func TestNodeRequeuesUnsyncedBlocks(t *testing.T) {
	kv := newTestKV()
	s, err := store.Open(t.Context(), kv)
	require.NoError(t, err)
	var parent types.ID
	for h := uint64(1); h <= 3; h++ {
		b, err := types.NewSequencerBlock(types.BlockHeight(h), parent, h, types.Transactions{types.NewTransaction([]byte("tx"), 0, h)})
		require.NoError(t, err)
		require.NoError(t, s.SaveBlock(t.Context(), b))
		parent = b.ID()
	}
	require.NoError(t, s.SetSyncedHeight(t.Context(), 1))

	cfg := newTestConfig(t, nil)
	backend := celestia.NewMemoryBackend(cfg.DA.MaxBlobSize)
	r := startNode(t, cfg, kv, backend)

	require.Eventually(t, func() bool {
		synced, err := r.node.Store().GetSyncedHeight(t.Context())
		return err == nil && synced == 3
	}, 5*time.Second, 20*time.Millisecond)

	ns, err := celestia.ParseNamespace(cfg.DA.Namespace)
	require.NoError(t, err)
	var published []types.BlockHeight
	for daHeight := uint64(1); daHeight <= backend.Height(); daHeight++ {
		blobs, err := backend.GetAll(t.Context(), daHeight, ns.Bytes())
		require.NoError(t, err)
		for _, bz := range blobs {
			blob, err := celestia.BlobFromBytes(bz)
			require.NoError(t, err)
			for _, d := range blob.Digests {
				published = append(published, d.Height)
			}
		}
	}
	assert.Equal(t, []types.BlockHeight{2, 3}, published, "only unsynced blocks are published again")

	r.cancel()
	require.NoError(t, r.wait(t))
}

func TestNodeStopsWhenDASubmissionFails(t *testing.T) {
	signer, err := local.GenerateSigner()
	require.NoError(t, err)
	cfg := newTestConfig(t, signer)
	cfg.DA.SubmitAttempts = 2

	errDA := errors.New("celestia unreachable")
	backend := celestia.NewMemoryBackend(cfg.DA.MaxBlobSize)
	backend.SetSubmitHook(func(context.Context, []byte) error { return errDA })
	r := startNode(t, cfg, newTestKV(), backend)

	client := rpcclient.NewClient(r.url, signer)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	stream, err := client.StreamReadFromHeight(ctx, 1)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, client.BatchWrite(ctx, types.Transactions{types.NewTransaction([]byte("doomed"), 0, 1)}))
	require.ErrorIs(t, r.wait(t), errDA)

	// The block is readable from the stream, then the stream fails.
	for stream.Next() {
	}
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(stream.Err()))
}

func TestNewNodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"missing whitelist", func(cfg *config.Config) { cfg.Sequencer.WhitelistPath = "does/not/exist" }},
		{"bad namespace", func(cfg *config.Config) { cfg.DA.Namespace = "not-hex" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, nil)
			tt.mutate(&cfg)
			_, err := NewNode(t.Context(), cfg, newTestKV(), celestia.NewMemoryBackend(0), DefaultMetricsProvider(nil), log.NewNopLogger())
			assert.Error(t, err)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := newTestConfig(t, nil)
	n, err := NewNode(t.Context(), cfg, newTestKV(), celestia.NewMemoryBackend(0), DefaultMetricsProvider(nil), log.NewTestLogger(t))
	require.NoError(t, err)

	srv := httptest.NewServer(n.instrumentationHandler())
	defer srv.Close()

	// The producer loop is not running yet.
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", status.Status)
	assert.NotEmpty(t, status.Error)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- n.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-errCh)
}

func TestNewBackend(t *testing.T) {
	cfg := config.DefaultConfig
	cfg.RootDir = t.TempDir()

	cfg.DA.Backend = config.DABackendMemory
	backend, err := NewBackend(t.Context(), cfg, log.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &celestia.MemoryBackend{}, backend)
	require.NoError(t, backend.Close())

	cfg.DA.Backend = config.DABackendLocal
	backend, err = NewBackend(t.Context(), cfg, log.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &celestia.LocalBackend{}, backend)
	assert.DirExists(t, filepath.Join(cfg.RootDir, cfg.DBPath, LocalDADBName))
	require.NoError(t, backend.Close())

	cfg.DA.Backend = "carrier-pigeon"
	_, err = NewBackend(t.Context(), cfg, log.NewNopLogger())
	assert.Error(t, err)
}

func TestConfigLimitsMatchProtocol(t *testing.T) {
	assert.Equal(t, types.MaxSequencerBlockSize, config.DefaultMaxBlockSize)
	assert.Equal(t, celestia.MaxCelestiaBlobSize, config.DefaultMaxBlobSize)
	assert.Equal(t, celestia.DefaultNamespace, config.DefaultDANamespace)
}
