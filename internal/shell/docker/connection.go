package docker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/artpar/relaunch/internal/core/engine"
)

// TLS material file names expected inside a certificate directory.
const (
	CAFileName   = "ca.pem"
	CertFileName = "cert.pem"
	KeyFileName  = "key.pem"
)

// sshTunnelHost is a placeholder host; every request is carried by the tunnel dialer.
const sshTunnelHost = "http://docker.example.com"

// ConnectionConfig carries client settings that are not part of the address.
type ConnectionConfig struct {
	// APIVersion pins the engine API version. Empty negotiates with the daemon.
	APIVersion string

	// SSHKnownHosts is a known_hosts file used to verify SSH engine hosts.
	// Empty accepts any host key.
	SSHKnownHosts string

	// SSHTimeout bounds the SSH handshake.
	SSHTimeout time.Duration

	Logger *slog.Logger
}

func (c ConnectionConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// =============================================================================
// TLS Material
// =============================================================================

// LoadTLSOptions builds TLS options from whatever material exists in certDir.
// Missing files are reported by name and skipped. A client certificate is
// only used when both cert.pem and key.pem are present.
func LoadTLSOptions(certDir string) (tlsconfig.Options, []string) {
	var opts tlsconfig.Options
	var missing []string

	if certDir == "" {
		return opts, []string{CAFileName, CertFileName, KeyFileName}
	}

	ca := filepath.Join(certDir, CAFileName)
	if fileExists(ca) {
		opts.CAFile = ca
	} else {
		missing = append(missing, CAFileName)
	}

	cert := filepath.Join(certDir, CertFileName)
	key := filepath.Join(certDir, KeyFileName)
	certOK, keyOK := fileExists(cert), fileExists(key)
	if !certOK {
		missing = append(missing, CertFileName)
	}
	if !keyOK {
		missing = append(missing, KeyFileName)
	}
	if certOK && keyOK {
		opts.CertFile = cert
		opts.KeyFile = key
	}

	return opts, missing
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// =============================================================================
// Client Options
// =============================================================================

// clientOptions maps a resolved connection onto Docker SDK options.
func clientOptions(conn engine.Connection, cfg ConnectionConfig) ([]client.Opt, []io.Closer, error) {
	var opts []client.Opt
	var closers []io.Closer

	switch c := conn.(type) {
	case engine.LocalSocket:
		opts = append(opts, client.WithHost(c.Host()))

	case engine.RemoteTCP:
		if c.TLS {
			tlsOpts, missing := LoadTLSOptions(c.CertDir)
			if len(missing) > 0 {
				cfg.logger().Warn("TLS material missing, continuing without it",
					"cert_dir", c.CertDir,
					"missing", missing,
				)
			}
			tlsCfg, err := tlsconfig.Client(tlsOpts)
			if err != nil {
				return nil, nil, NewDockerError("NewDockerClient", "", "", err.Error(), errors.Join(ErrTLSMaterial, err))
			}
			httpClient := &http.Client{
				Transport:     &http.Transport{TLSClientConfig: tlsCfg},
				CheckRedirect: client.CheckRedirect,
			}
			opts = append(opts, client.WithHTTPClient(httpClient))
		}
		opts = append(opts, client.WithHost(c.Host()))

	case engine.SSHTunnel:
		tunnel, err := newSSHTunnel(c, cfg)
		if err != nil {
			return nil, nil, NewDockerError("NewDockerClient", "", "", err.Error(), errors.Join(ErrConnectionFailed, err))
		}
		httpClient := &http.Client{
			Transport: &http.Transport{DialContext: tunnel.DialContext},
		}
		opts = append(opts,
			client.WithHTTPClient(httpClient),
			client.WithHost(sshTunnelHost),
			client.WithDialContext(tunnel.DialContext),
		)
		closers = append(closers, tunnel)

	default:
		return nil, nil, NewDockerError("NewDockerClient", "", "", fmt.Sprintf("unsupported connection %T", conn), ErrConnectionFailed)
	}

	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	return opts, closers, nil
}
