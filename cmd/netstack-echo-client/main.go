// Command netstack-echo-client connects to a netstack-echo-server using a
// (secret, connection_token) pair obtained out-of-band, sends periodic
// pings, and logs whatever comes back.
package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/r2northstar/netstack/internal/envconfig"
	"github.com/r2northstar/netstack/pkg/netstack/client"
	"github.com/r2northstar/netstack/pkg/netstack/netstackmetrics"
	"github.com/r2northstar/netstack/pkg/netstack/token"
	"github.com/r2northstar/netstack/pkg/netstack/transport"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

// Config is the echo client's environment-driven configuration.
type Config struct {
	RemoteAddr       netip.AddrPort `env:"NETSTACK_REMOTE_ADDR"`
	Secret           string         `env:"NETSTACK_SECRET"`
	ConnectionToken  string         `env:"NETSTACK_CONNECTION_TOKEN"`
	Timeout          int            `env:"NETSTACK_TIMEOUT=300"`
	Heartbeat        int            `env:"NETSTACK_HEARTBEAT=30"`
	TickInterval     time.Duration  `env:"NETSTACK_TICK_INTERVAL=50ms"`
	PingInterval     time.Duration  `env:"NETSTACK_PING_INTERVAL=1s"`
	LogLevel         zerolog.Level  `env:"NETSTACK_LOG_LEVEL=info"`
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

	if !cfg.RemoteAddr.IsValid() {
		logger.Fatal().Msg("NETSTACK_REMOTE_ADDR is required")
	}
	secret, err := token.ParseSecret(cfg.Secret)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse NETSTACK_SECRET")
	}
	connectionToken, err := token.ParseConnectionTokenString(cfg.ConnectionToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse NETSTACK_CONNECTION_TOKEN")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}
	udp := transport.NewUDPTransport(conn)
	defer udp.Close()

	metricsSet := netstackmetrics.NewSet("netstack_client")

	cli := client.New(client.Config{
		MaxConnections: 1,
		Timeout:        cfg.Timeout,
		Heartbeat:      cfg.Heartbeat,
	}, udp, metricsSet, logger)

	handle, err := cli.Connect(cfg.RemoteAddr, secret, connectionToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tick := time.NewTicker(cfg.TickInterval)
	defer tick.Stop()
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	connected := false
	var n int
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return
		case <-ping.C:
			if !connected {
				continue
			}
			n++
			msg := fmt.Sprintf("ping %d", n)
			if _, err := cli.Send(handle, []byte(msg)); err != nil {
				logger.Warn().Err(err).Msg("send failed")
			}
		case <-tick.C:
			for _, ev := range cli.Update() {
				switch ev.Kind {
				case client.EventConnected:
					connected = true
					logger.Info().Msg("connected")
				case client.EventDisconnected:
					connected = false
					logger.Info().Msg("disconnected")
					return
				case client.EventMessage:
					logger.Info().Str("payload", string(ev.Payload)).Msg("received message")
				case client.EventMessageAcknowledged:
					logger.Debug().Uint64("sequence", ev.Sequence).Msg("message acknowledged")
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
