package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"cosmossdk.io/log"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/batch"
	"github.com/movementlabsxyz/da-sequencer/block"
	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/pkg/rpc/server"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer/local"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
	"github.com/movementlabsxyz/da-sequencer/types"
)

type pipeline struct {
	url      string
	signer   *local.Signer
	store    *store.SequencerDb
	notifier *block.Notifier
}

// setupTestServer runs a complete sequencer pipeline behind an HTTP test server.
func setupTestServer(t *testing.T) *pipeline {
	t.Helper()
	logger := log.NewTestLogger(t)

	signer, err := local.GenerateSigner()
	require.NoError(t, err)
	pub, err := signer.GetPublic()
	require.NoError(t, err)
	wl, err := whitelist.New(pub)
	require.NoError(t, err)

	s, err := store.Open(t.Context(), dssync.MutexWrap(ds.NewMapDatastore()))
	require.NoError(t, err)
	ns, err := celestia.ParseNamespace(celestia.DefaultNamespace)
	require.NoError(t, err)

	notifier := block.NewNotifier()
	batches := make(chan types.ValidatedBatch, 16)
	daClient, submitter := celestia.New(logger, celestia.NewMemoryBackend(celestia.MaxCelestiaBlobSize), ns, s, celestia.Options{})
	producer := block.NewProducer(logger, s, daClient, notifier, batches, block.ProducerConfig{BlockTime: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = submitter.Run(ctx) }()
	go func() { _ = producer.Run(ctx) }()

	svc := server.NewSequencerService(logger, batch.NewValidator(wl), batches, s, notifier, server.ServiceConfig{
		HeartbeatInterval: 50 * time.Millisecond,
	})
	testServer := httptest.NewServer(server.NewServiceHandler(svc))
	t.Cleanup(func() {
		cancel()
		notifier.Close()
		testServer.Close()
	})

	return &pipeline{url: testServer.URL, signer: signer, store: s, notifier: notifier}
}

func TestClientRoundTrip(t *testing.T) {
	p := setupTestServer(t)
	client := NewClient(p.url, p.signer)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	sent := types.Transactions{
		types.NewTransaction([]byte("tx1"), 0, 1),
		types.NewTransaction([]byte("tx2"), 0, 2),
		types.NewTransaction([]byte("tx3"), 0, 3),
		types.NewTransaction([]byte("tx4"), 0, 4),
	}
	require.NoError(t, client.BatchWrite(ctx, sent[:1]))
	require.NoError(t, client.BatchWrite(ctx, sent[1:3]))
	require.NoError(t, client.BatchWrite(ctx, sent[3:]))

	stream, err := client.StreamReadFromHeight(ctx, 0)
	require.NoError(t, err)
	defer stream.Close()

	var (
		received   types.Transactions
		lastHeight types.BlockHeight
	)
	for len(received) < len(sent) && stream.Next() {
		b := stream.Block()
		assert.Equal(t, lastHeight.Next(), b.Height(), "heights are contiguous")
		lastHeight = b.Height()
		received = append(received, b.Transactions()...)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, sent, received, "arrival order is preserved")

	b, err := client.ReadAtHeight(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, types.BlockHeight(1), b.Height())

	b, err = client.ReadAtHeight(ctx, 1000)
	require.NoError(t, err)
	assert.Nil(t, b)

	// The submitter confirms every block on the DA layer.
	require.Eventually(t, func() bool {
		synced, err := p.store.GetSyncedHeight(ctx)
		return err == nil && synced == uint64(lastHeight)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestClientNotWhitelisted(t *testing.T) {
	p := setupTestServer(t)
	outsider, err := local.GenerateSigner()
	require.NoError(t, err)

	err = NewClient(p.url, outsider).BatchWrite(t.Context(), types.Transactions{types.NewTransaction([]byte("x"), 0, 0)})
	require.Error(t, err)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	err = NewClient(p.url, nil).BatchWrite(t.Context(), nil)
	assert.Error(t, err)
}

func TestClientStreamEndsOnShutdown(t *testing.T) {
	p := setupTestServer(t)
	client := NewClient(p.url, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	stream, err := client.StreamReadFromHeight(ctx, 1)
	require.NoError(t, err)
	defer stream.Close()

	go func() {
		time.Sleep(300 * time.Millisecond)
		p.notifier.Close()
	}()

	assert.False(t, stream.Next())
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(stream.Err()))
	assert.Positive(t, stream.Heartbeats(), "idle streams receive heartbeats")
}
