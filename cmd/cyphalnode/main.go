// Command cyphalnode runs a Cyphal/CAN node that publishes its heartbeat,
// answers GetInfo and ExecuteCommand requests and tracks the other nodes on
// the bus.
//
// Usage:
//
//	cyphalnode -config node.toml -iface can0 -metrics :9100
//	candump -L vcan0 | cyphalnode -config node.toml -iface -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/config"
	"github.com/soypat/cyphal-node/dsdl"
	"github.com/soypat/cyphal-node/logging"
	"github.com/soypat/cyphal-node/node"
	"github.com/soypat/cyphal-node/observability"
	"github.com/soypat/cyphal-node/peers"
	"golang.org/x/sync/errgroup"
)

const tickPeriod = 10 * time.Millisecond

// monitorExtent bounds the payload kept for transfers on configured ports.
const monitorExtent = 256

type options struct {
	configPath  string
	iface       string
	metricsAddr string
	printConfig bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "node configuration file (TOML)")
	flag.StringVar(&opts.iface, "iface", "can0", `SocketCAN interface, or "-" for candump lines on stdin/stdout`)
	flag.StringVar(&opts.metricsAddr, "metrics", "", "address to serve Prometheus metrics on, disabled if empty")
	flag.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "cyphalnode: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	log := logging.Runtime("cyphalnode")

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	}
	if opts.printConfig {
		return cfg.Encode(os.Stdout)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := observability.NewMetrics(cfg.NodeID)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	table := peers.NewTable(log.With().Str("component", "peers").Logger())

	nc := cfg.NodeConfig()
	nc.Logger = &log
	nc.Observer = metrics
	n, err := node.New(nc, table, commands(cancel, &cfg, opts.configPath, log))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	for i, p := range cfg.Ports {
		h, err := node.NewRegisterMessageHandler(n.Instance(), n.TxQueue(), &cfg, uint8(i), monitorExtent, monitor(log, p.Name))
		if err == nil {
			err = n.Register(h)
		}
		if err != nil {
			return fmt.Errorf("port %q: %w", p.Name, err)
		}
	}

	b, err := openBus(opts.iface, os.Stdin, os.Stdout, cfg.MTU)
	if err != nil {
		return err
	}
	if mtu := b.MTU(); mtu < n.TxQueue().MTU {
		log.Warn().Int("configured", n.TxQueue().MTU).Int("interface", mtu).Msg("reducing MTU to interface limit")
		n.TxQueue().MTU = mtu
	}
	log.Info().
		Uint8("node_id", uint8(cfg.NodeID)).
		Str("name", cfg.Name).
		Str("iface", opts.iface).
		Int("mtu", n.TxQueue().MTU).
		Int("handlers", n.Registry().Len()).
		Msg("node started")

	type rxFrame struct {
		ts    canard.Microsecond
		frame canard.Frame
	}
	start := time.Now()
	clock := func() canard.Microsecond { return canard.Microsecond(time.Since(start).Microseconds()) }
	rx := make(chan rxFrame, 64)

	g, gctx := errgroup.WithContext(ctx)
	// The reader is not part of the group: a read on stdin cannot be
	// interrupted and must not hold up shutdown.
	rxErr := make(chan error, 1)
	go func() {
		for {
			f, err := b.Receive()
			if err != nil {
				rxErr <- err
				return
			}
			select {
			case rx <- rxFrame{ts: clock(), frame: f}:
			case <-gctx.Done():
				return
			}
		}
	}()
	g.Go(func() error {
		<-gctx.Done()
		return b.Close()
	})
	g.Go(func() error {
		ticker := time.NewTicker(tickPeriod)
		defer ticker.Stop()
		errc := rxErr
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errc:
				if !isClosed(err) {
					return fmt.Errorf("receive: %w", err)
				}
				log.Info().Msg("bus input closed")
				errc = nil
			case f := <-rx:
				n.HandleFrame(f.ts, &f.frame)
			case <-ticker.C:
				now := clock()
				if err := n.Tick(now); err != nil {
					log.Debug().Err(err).Msg("tick")
				}
				if _, err := n.DrainTx(now, b.Send); err != nil && !isClosed(err) {
					log.Warn().Err(err).Msg("transmit failed")
				}
				metrics.PeersOnline(table.Count(now))
			}
		}
	})
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info().Err(err).Uint32("uptime", n.Uptime(clock())).Msg("node stopped")
	return err
}

// commands wires the standard ExecuteCommand codes to process actions.
func commands(stop context.CancelFunc, cfg *config.Config, path string, log zerolog.Logger) *node.CommandMux {
	mux := node.NewCommandMux()
	shutdown := func(command uint16, _ []byte) dsdl.CommandStatus {
		log.Warn().Uint16("command", command).Msg("shutdown requested over the bus")
		// Let the response go out before the loop stops.
		time.AfterFunc(100*time.Millisecond, stop)
		return dsdl.StatusSuccess
	}
	mux.Handle(dsdl.CommandRestart, shutdown)
	mux.Handle(dsdl.CommandPowerOff, shutdown)
	mux.Handle(dsdl.CommandStorePersistentStates, func(uint16, []byte) dsdl.CommandStatus {
		if path == "" {
			return dsdl.StatusBadState
		}
		if err := storeConfig(cfg, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("store configuration")
			return dsdl.StatusFailure
		}
		return dsdl.StatusSuccess
	})
	return mux
}

func storeConfig(cfg *config.Config, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := cfg.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func monitor(log zerolog.Logger, name string) func(*canard.Transfer) {
	return func(tr *canard.Transfer) {
		log.Debug().
			Str("port", name).
			Uint8("src", uint8(tr.Metadata.Remote)).
			Uint8("tid", uint8(tr.Metadata.TID)).
			Int("size", len(tr.Payload)).
			Msg("transfer")
	}
}
