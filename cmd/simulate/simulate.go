// Package simulate syncs a fresh node from in-process peers serving a generated chain. It runs the full
// message layer against the memory chain and transport and reports how the download went.
package simulate

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsv-blockchain/peerlogic/errors"
	"github.com/bsv-blockchain/peerlogic/services/netprocessing"
	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/tracing"
	"github.com/bsv-blockchain/peerlogic/ulogger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

type options struct {
	blocks       int
	peers        int
	stallAt      int
	stallTimeout time.Duration
	timeout      time.Duration
	metricsAddr  string
	logLevel     string
}

// Command returns the simulate cli command.
func Command(progname string) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Sync from simulated peers serving a generated chain",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "blocks", Value: 500, Usage: "length of the chain the peers serve"},
			&cli.IntFlag{Name: "peers", Value: 2, Usage: "number of simulated peers"},
			&cli.IntFlag{Name: "stall-at", Usage: "height the first peer never delivers, 0 for none"},
			&cli.DurationFlag{Name: "stall-timeout", Usage: "override the stalltimeout setting"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "give up after this long"},
			&cli.StringFlag{Name: "metrics", Usage: "serve prometheus metrics on this address"},
			&cli.StringFlag{Name: "log-level", Value: "INFO"},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, progname, options{
				blocks:       c.Int("blocks"),
				peers:        c.Int("peers"),
				stallAt:      c.Int("stall-at"),
				stallTimeout: c.Duration("stall-timeout"),
				timeout:      c.Duration("timeout"),
				metricsAddr:  c.String("metrics"),
				logLevel:     c.String("log-level"),
			})
		},
	}
}

func run(ctx context.Context, progname string, opts options) error {
	logger := ulogger.New(progname, ulogger.WithLevel(opts.logLevel))

	if opts.blocks < 1 || opts.peers < 1 {
		return errors.NewInvalidArgumentError("blocks and peers must be positive")
	}

	tSettings := settings.NewSettings()
	if opts.stallTimeout > 0 {
		tSettings.NetProcessing.StallTimeout = opts.stallTimeout
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, progname, tSettings)
	if err != nil {
		return err
	}

	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	if opts.metricsAddr != "" {
		go serveMetrics(logger, opts.metricsAddr)
	}

	remote := netprocessing.NewMemoryChain()
	if err = remote.GenerateBlocks(ctx, opts.blocks); err != nil {
		return err
	}

	logger.Infof("[simulate] peers serve %d blocks, tip %s", opts.blocks, remote.BestHash())

	chain := netprocessing.NewMemoryChain()
	transport := netprocessing.NewMemoryTransport()

	server := netprocessing.New(logger, tSettings, chain, transport)
	chain.SetNotifier(server)
	transport.Attach(server)

	if err = server.Init(ctx); err != nil {
		return err
	}

	defer func() {
		_ = server.Stop(context.Background())
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	start := time.Now()

	for i := 1; i <= opts.peers; i++ {
		id := netprocessing.PeerID(i)

		peer := netprocessing.NewSimulatedPeer(remote)
		if i == 1 {
			peer.StallAt = int32(opts.stallAt) //nolint:gosec // flag value
		}

		if err = transport.Connect(id, peer); err != nil {
			return err
		}

		g.Go(func() error {
			return server.RunPeer(gCtx, id)
		})
	}

	target := remote.BestHeight()

	g.Go(func() error {
		defer cancel()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				height := chain.BestHeight()
				logger.Infof("[simulate] height %d/%d, orphans %d", height, target, server.OrphanCount())

				if height >= target {
					return nil
				}
			}
		}
	})

	if err = g.Wait(); err != nil {
		return err
	}

	report(logger, server, chain.BestHeight(), target, time.Since(start))

	if chain.BestHeight() < target {
		return errors.NewProcessingError("sync incomplete at height %d of %d", chain.BestHeight(), target)
	}

	return nil
}

func report(logger ulogger.Logger, server *netprocessing.Server, height, target int32, elapsed time.Duration) {
	logger.Infof("[simulate] reached height %d of %d in %s", height, target, elapsed)

	for _, id := range server.Peers() {
		stats, err := server.GetNodeStateStats(id)
		if err != nil {
			continue
		}

		logger.Infof("[simulate] peer %d: state %s common height %d misbehavior %d", id, stats.SyncState, stats.CommonHeight, stats.MisbehaviorScore)
	}
}

func serveMetrics(logger ulogger.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Infof("[simulate] serving metrics on http://%s/metrics", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("[simulate] metrics server: %v", err)
	}
}
