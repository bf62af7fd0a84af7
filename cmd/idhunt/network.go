package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/transport"
)

// network is the connection setup of one run.
type network struct {
	client *transport.Client

	// tor is the embedded daemon, nil unless --tor was given.
	tor *transport.EmbeddedTor
}

// openNetwork creates the shared HTTP client of a run. With --proxy the
// proxy is checked before any probe; with --tor an embedded daemon is
// started first.
func openNetwork(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*network, error) {
	opts := transport.Options{
		ProxyAddress:    cfg.ProxyAddress,
		MaxConnsPerHost: cfg.Concurrency,
	}

	if cfg.UseTor {
		client, embeddedTor, err := startEmbeddedTor(ctx, cfg, opts, logger, status)
		if err != nil {
			return nil, err
		}
		return &network{client: client, tor: embeddedTor}, nil
	}

	client, err := transport.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	if client.Proxied() {
		if proxyStatus := client.CheckConnection(ctx); proxyStatus != transport.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				proxyStatus.Error(), client.ProxyAddress())
		}
		logger.Info("proxy connection verified", "address", client.ProxyAddress())
	}

	return &network{client: client}, nil
}

// Close releases idle connections and stops the embedded daemon.
func (n *network) Close(logger *slog.Logger) {
	n.client.CloseIdleConnections()
	if n.tor == nil {
		return
	}
	logger.Info("stopping embedded Tor daemon...")
	if err := n.tor.Stop(); err != nil {
		logger.Error("failed to stop embedded Tor", "error", err)
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
// Returns the client and embedded Tor manager on success.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, opts transport.Options, logger *slog.Logger, status io.Writer) (*transport.Client, *transport.EmbeddedTor, error) {
	fmt.Fprintln(status, "Starting embedded Tor daemon...")
	fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
	)

	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	fmt.Fprintf(status, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())

	client, err := embeddedTor.NewClient(opts)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if proxyStatus := client.CheckConnection(ctx); proxyStatus != transport.ProxyStatusOK {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", proxyStatus)
	}

	return client, embeddedTor, nil
}
