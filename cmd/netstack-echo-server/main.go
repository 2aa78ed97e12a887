// Command netstack-echo-server runs a netstack server that echoes every
// payload it receives back to its sender, logging each connection's
// lifecycle and exposing Prometheus metrics over HTTP.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/r2northstar/netstack/internal/envconfig"
	"github.com/r2northstar/netstack/pkg/netstack/netstackmetrics"
	"github.com/r2northstar/netstack/pkg/netstack/server"
	"github.com/r2northstar/netstack/pkg/netstack/token"
	"github.com/r2northstar/netstack/pkg/netstack/transport"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

// Config is the echo server's environment-driven configuration, following
// the same env-tag-and-reflection pattern as pkg/atlas/config.go.
type Config struct {
	ListenAddr      netip.AddrPort `env:"NETSTACK_LISTEN_ADDR=:9000"`
	MetricsAddr     netip.AddrPort `env:"NETSTACK_METRICS_ADDR"`
	MaxConnections  int            `env:"NETSTACK_MAX_CONNECTIONS=64"`
	Timeout         int            `env:"NETSTACK_TIMEOUT=300"`
	Heartbeat       int            `env:"NETSTACK_HEARTBEAT=30"`
	ReservedTimeout int            `env:"NETSTACK_RESERVED_TIMEOUT=150"`
	TickInterval    time.Duration  `env:"NETSTACK_TICK_INTERVAL=50ms"`
	LogLevel        zerolog.Level  `env:"NETSTACK_LOG_LEVEL=info"`
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		x, err := readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		e = x
	}

	var cfg Config
	if err := envconfig.Unmarshal(&cfg, e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Logger()

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(cfg.ListenAddr))
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
	udp := transport.NewUDPTransport(conn)
	defer udp.Close()

	metricsSet := netstackmetrics.NewSet("netstack_server")

	srv := server.New(server.Config{
		MaxConnections:  cfg.MaxConnections,
		Timeout:         cfg.Timeout,
		Heartbeat:       cfg.Heartbeat,
		ReservedTimeout: cfg.ReservedTimeout,
	}, udp, metricsSet, logger)

	if cfg.MetricsAddr.IsValid() {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metricsSet.WritePrometheus(w)
		})
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr.String(), mux); err != nil {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Stringer("addr", udp.LocalAddr()).Msg("listening")

	pair, err := token.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("mint reservation")
	}
	if _, err := srv.Reserve(pair.Secret, pair.ConnectionToken); err != nil {
		logger.Fatal().Err(err).Msg("reserve slot")
	}
	logger.Info().
		Str("secret", pair.Secret.String()).
		Str("connection_token", pair.ConnectionToken.String()).
		Msg("reserved a slot; hand these to a client out-of-band")

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return
		case <-ticker.C:
			for _, ev := range srv.Update() {
				switch ev.Kind {
				case server.EventConnected:
					logger.Info().Int("slot", ev.Handle.Slot).Msg("connected")
				case server.EventDisconnected:
					logger.Info().Int("slot", ev.Handle.Slot).Msg("disconnected")
				case server.EventMessage:
					logger.Debug().Int("slot", ev.Handle.Slot).Int("len", len(ev.Payload)).Msg("echoing message")
					if _, err := srv.Send(ev.Handle, ev.Payload); err != nil {
						logger.Warn().Err(err).Msg("echo send failed")
					}
				case server.EventMessageAcknowledged:
					logger.Debug().Int("slot", ev.Handle.Slot).Uint64("sequence", ev.Sequence).Msg("message acknowledged")
				}
			}
		}
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	r := make([]string, 0, len(m))
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
