// Package node wires the sequencer pipeline: batch ingress, block production,
// storage and DA publication.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"

	"cosmossdk.io/log"
	ds "github.com/ipfs/go-datastore"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/movementlabsxyz/da-sequencer/batch"
	"github.com/movementlabsxyz/da-sequencer/block"
	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/rpc/server"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
	"github.com/movementlabsxyz/da-sequencer/pkg/whitelist"
	"github.com/movementlabsxyz/da-sequencer/types"
)

// Node is a DA-sequencer node. It owns the store and the DA backend and
// closes both when Run returns.
type Node struct {
	logger log.Logger
	config config.Config

	store     *store.SequencerDb
	backend   celestia.Backend
	whitelist *whitelist.Whitelist
	notifier  *block.Notifier
	daClient  *celestia.Client
	submitter *celestia.Submitter
	producer  *block.Producer
	service   *server.SequencerService
}

// NewNode builds a node over kv and backend. The whitelist is read from the
// configured file.
func NewNode(
	ctx context.Context,
	cfg config.Config,
	kv ds.Batching,
	backend celestia.Backend,
	metricsProvider MetricsProvider,
	logger log.Logger,
) (*Node, error) {
	wl, err := whitelist.Load(cfg.WhitelistFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist: %w", err)
	}
	if wl.Len() == 0 {
		logger.Warn("whitelist is empty, every batch will be rejected", "path", cfg.WhitelistFile())
	}

	namespace, err := celestia.ParseNamespace(cfg.DA.Namespace)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	blockMetrics, daMetrics := metricsProvider()
	notifier := block.NewNotifier()
	batches := make(chan types.ValidatedBatch, cfg.Sequencer.BatchQueueSize)

	daClient, submitter := celestia.New(logger, backend, namespace, db, celestia.Options{
		MaxBlobSize:       cfg.DA.MaxBlobSize,
		MaxSubmitAttempts: cfg.DA.SubmitAttempts,
		InitialBackoff:    cfg.DA.SubmitBackoff.Duration,
		MaxBackoff:        cfg.DA.MaxBackoff.Duration,
		ChannelSize:       cfg.DA.ChannelSize,
		Metrics:           daMetrics,
	})
	producer := block.NewProducer(logger, db, daClient, notifier, batches, block.ProducerConfig{
		BlockTime:    cfg.Sequencer.BlockTime.Duration,
		MaxBlockSize: cfg.Sequencer.MaxBlockSize,
		Metrics:      blockMetrics,
	})
	service := server.NewSequencerService(logger, batch.NewValidator(wl), batches, db, notifier, server.ServiceConfig{
		HeartbeatInterval: cfg.Sequencer.HeartbeatInterval.Duration,
		MaxBlockSize:      cfg.Sequencer.MaxBlockSize,
	})

	return &Node{
		logger:    logger.With("module", "node"),
		config:    cfg,
		store:     db,
		backend:   backend,
		whitelist: wl,
		notifier:  notifier,
		daClient:  daClient,
		submitter: submitter,
		producer:  producer,
		service:   service,
	}, nil
}

// Store returns the block store of the node.
func (n *Node) Store() *store.SequencerDb {
	return n.store
}

// ReloadWhitelist re-reads the whitelist file. The current key set is kept
// when the file can not be read.
func (n *Node) ReloadWhitelist() error {
	if err := n.whitelist.Reload(n.config.WhitelistFile()); err != nil {
		return fmt.Errorf("failed to reload whitelist: %w", err)
	}
	n.logger.Info("whitelist reloaded", "keys", n.whitelist.Len())
	return nil
}

// Run listens on the configured gRPC address and runs the node until ctx is
// done or a pipeline task fails.
func (n *Node) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.config.GRPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.config.GRPC.ListenAddress, err)
	}
	return n.Serve(ctx, listener)
}

// Serve runs the node with the gRPC service on listener. The first task to
// fail stops all others. Cancelling ctx is a clean shutdown.
func (n *Node) Serve(ctx context.Context, listener net.Listener) (err error) {
	defer func() {
		err = multierr.Append(err, n.close())
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.submitter.Run(gctx)
	})
	g.Go(func() error {
		// Digests the submitter does not publish before shutdown are
		// requeued from the store on the next start.
		defer n.daClient.Close()
		if err := n.requeueUnsynced(gctx); err != nil {
			return err
		}
		return n.producer.Run(gctx)
	})
	g.Go(func() error {
		// Open block streams end with Unavailable once the pipeline stops.
		<-gctx.Done()
		n.notifier.Close()
		return nil
	})

	grpcServer := server.NewServer(n.logger, listener.Addr().String(), n.config.GRPC.MaxOpenConnections, server.NewServiceHandler(n.service))
	g.Go(func() error {
		return grpcServer.Serve(gctx, listener)
	})

	if instr := n.config.Instrumentation; instr != nil {
		if instr.IsPrometheusEnabled() {
			metricsServer := server.NewServer(n.logger, instr.PrometheusListenAddr, instr.MaxOpenConnections, n.instrumentationHandler())
			g.Go(func() error {
				return metricsServer.Run(gctx)
			})
		}
		if instr.IsPprofEnabled() {
			pprofServer := server.NewServer(n.logger, instr.GetPprofListenAddr(), 0, pprofHandler())
			g.Go(func() error {
				return pprofServer.Run(gctx)
			})
		}
	}

	n.logger.Info("node started", "grpc", listener.Addr().String(), "namespace", n.config.DA.Namespace, "backend", n.config.DA.Backend)
	err = g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		n.logger.Error("node stopped", "error", err)
	} else {
		n.logger.Info("node stopped")
	}
	return err
}

// requeueUnsynced hands the digests of blocks produced but not confirmed on
// the DA layer back to the submitter, in height order.
func (n *Node) requeueUnsynced(ctx context.Context) error {
	synced, err := n.store.GetSyncedHeight(ctx)
	if err != nil {
		return err
	}
	height, err := n.store.Height(ctx)
	if err != nil {
		return err
	}
	if synced >= height {
		return nil
	}
	n.logger.Info("re-queueing unsynced blocks", "from", synced+1, "to", height)
	for h := synced + 1; h <= height; h++ {
		b, err := n.store.GetBlock(ctx, h)
		if err != nil {
			return fmt.Errorf("failed to load unsynced block %d: %w", h, err)
		}
		if err := n.daClient.SendDigest(ctx, b.Digest()); err != nil {
			return fmt.Errorf("failed to re-queue digest of block %d: %w", h, err)
		}
	}
	return nil
}

func (n *Node) close() error {
	return multierr.Combine(
		n.store.Close(),
		n.backend.Close(),
	)
}
