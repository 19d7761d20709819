package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/artpar/relaunch/internal/core/crypto"
	"github.com/artpar/relaunch/internal/core/engine"
)

// sshTunnel dials the remote engine socket through a shared SSH connection.
// The connection is established lazily and re-established when it dies.
type sshTunnel struct {
	target      engine.SSHTunnel
	config      *ssh.ClientConfig
	fingerprint string
	logger      *slog.Logger

	mu        sync.Mutex // Protects sshClient
	sshClient *ssh.Client
}

func newSSHTunnel(target engine.SSHTunnel, cfg ConnectionConfig) (*sshTunnel, error) {
	if target.KeyPath == "" {
		return nil, errors.New("ssh engine requires a private key path")
	}
	keyBytes, err := os.ReadFile(target.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read SSH key: %w", err)
	}
	signer, err := crypto.ParseSSHPrivateKey(keyBytes)
	if err != nil {
		return nil, err
	}
	fingerprint, err := crypto.SSHPublicKeyFingerprint(keyBytes)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.SSHKnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(cfg.SSHKnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	timeout := cfg.SSHTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &sshTunnel{
		target: target,
		config: &ssh.ClientConfig{
			User:            target.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
		fingerprint: fingerprint,
		logger:      cfg.logger().With("component", "ssh_tunnel"),
	}, nil
}

// DialContext opens a stream to the engine socket on the remote host.
func (t *sshTunnel) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	sshClient, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := sshClient.Dial("unix", t.target.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s via ssh: %w", t.target.SocketPath, err)
	}
	return conn, nil
}

func (t *sshTunnel) connect(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sshClient != nil {
		// Check if connection is still alive
		if _, _, err := t.sshClient.SendRequest("keepalive@relaunch", true, nil); err == nil {
			return t.sshClient, nil
		}
		t.sshClient.Close()
		t.sshClient = nil
	}

	addr := t.target.Addr()
	dialer := net.Dialer{Timeout: t.config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(netConn, addr, t.config)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w", addr, err)
	}

	t.sshClient = ssh.NewClient(conn, chans, reqs)
	t.logger.Debug("ssh connection established",
		"addr", addr,
		"user", t.target.User,
		"key_fingerprint", t.fingerprint,
	)
	return t.sshClient, nil
}

// Close closes the SSH connection.
func (t *sshTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sshClient != nil {
		err := t.sshClient.Close()
		t.sshClient = nil
		return err
	}
	return nil
}
