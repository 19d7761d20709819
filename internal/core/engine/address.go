// Package engine resolves how to reach the container engine.
//
// The configuration is loosely typed (a URI string plus a handful of knobs);
// Resolve turns it into exactly one Connection variant. Malformed remote
// addressing never fails: it falls back to the local socket and says so in
// the returned warnings.
package engine

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default ports and paths.
const (
	DefaultSocketPath = "/var/run/docker.sock"
	DefaultPlainPort  = 2375
	DefaultTLSPort    = 2376
	DefaultSSHPort    = 22
)

// =============================================================================
// Connection Variants
// =============================================================================

// Mode identifies the active Connection variant.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
	ModeSSH    Mode = "ssh"
)

// Connection is one of LocalSocket, RemoteTCP or SSHTunnel.
type Connection interface {
	Mode() Mode
	// Host returns the engine address in the form the Docker client expects.
	Host() string
}

// LocalSocket reaches the engine through its unix control socket.
type LocalSocket struct {
	Path string
}

func (LocalSocket) Mode() Mode { return ModeLocal }

func (c LocalSocket) Host() string { return "unix://" + c.Path }

// RemoteTCP reaches the engine over TCP, optionally with mutual TLS.
type RemoteTCP struct {
	Hostname string
	Port     int
	TLS      bool
	CertDir  string // ca.pem, cert.pem, key.pem; any of them may be missing
}

func (RemoteTCP) Mode() Mode { return ModeRemote }

func (c RemoteTCP) Host() string {
	return "tcp://" + net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// SSHTunnel reaches a remote engine's unix socket through an SSH connection.
type SSHTunnel struct {
	User       string
	Hostname   string
	Port       int
	SocketPath string
	KeyPath    string
}

func (SSHTunnel) Mode() Mode { return ModeSSH }

// Host returns a placeholder address; the SSH dialer ignores it.
func (c SSHTunnel) Host() string { return "unix://" + c.SocketPath }

// Addr returns the SSH server address.
func (c SSHTunnel) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// =============================================================================
// Resolution
// =============================================================================

// Settings is the raw engine configuration.
type Settings struct {
	SocketPath string // local socket, default /var/run/docker.sock
	Address    string // unix://, tcp://, ssh:// URI or a bare hostname
	Port       int    // tcp port when Address carries none
	TLS        bool
	CertDir    string
	SSHUser    string
	SSHKeyPath string
}

// Resolve derives exactly one Connection from s.
// The returned warnings describe any fallback that was applied.
func Resolve(s Settings) (Connection, []string) {
	local := LocalSocket{Path: s.SocketPath}
	if local.Path == "" {
		local.Path = DefaultSocketPath
	}

	address := strings.TrimSpace(s.Address)
	if address == "" {
		return local, nil
	}

	conn, err := parseAddress(address, s)
	if err != nil {
		return local, []string{fmt.Sprintf("engine address %q unusable (%v), using local socket %s", address, err, local.Path)}
	}
	return conn, nil
}

func parseAddress(address string, s Settings) (Connection, error) {
	if strings.HasPrefix(address, "/") {
		return LocalSocket{Path: address}, nil
	}
	if !strings.Contains(address, "://") {
		address = "tcp://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" {
			return nil, fmt.Errorf("missing socket path")
		}
		return LocalSocket{Path: path}, nil

	case "tcp", "http", "https":
		if u.Hostname() == "" {
			return nil, fmt.Errorf("missing host")
		}
		useTLS := s.TLS || u.Scheme == "https"
		port, err := resolvePort(u.Port(), s.Port, useTLS)
		if err != nil {
			return nil, err
		}
		return RemoteTCP{
			Hostname: u.Hostname(),
			Port:     port,
			TLS:      useTLS,
			CertDir:  s.CertDir,
		}, nil

	case "ssh":
		if u.Hostname() == "" {
			return nil, fmt.Errorf("missing host")
		}
		user := s.SSHUser
		if u.User != nil && u.User.Username() != "" {
			user = u.User.Username()
		}
		if user == "" {
			return nil, fmt.Errorf("missing ssh user")
		}
		port := DefaultSSHPort
		if u.Port() != "" {
			p, err := strconv.Atoi(u.Port())
			if err != nil || p <= 0 || p > 65535 {
				return nil, fmt.Errorf("invalid port %q", u.Port())
			}
			port = p
		}
		socket := u.Path
		if socket == "" || socket == "/" {
			socket = DefaultSocketPath
		}
		return SSHTunnel{
			User:       user,
			Hostname:   u.Hostname(),
			Port:       port,
			SocketPath: socket,
			KeyPath:    s.SSHKeyPath,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// resolvePort picks the URI port, then the configured port, then the
// conventional port for the transport.
func resolvePort(uriPort string, configured int, useTLS bool) (int, error) {
	if uriPort != "" {
		p, err := strconv.Atoi(uriPort)
		if err != nil || p <= 0 || p > 65535 {
			return 0, fmt.Errorf("invalid port %q", uriPort)
		}
		return p, nil
	}
	if configured > 0 {
		if configured > 65535 {
			return 0, fmt.Errorf("invalid port %d", configured)
		}
		return configured, nil
	}
	if useTLS {
		return DefaultTLSPort, nil
	}
	return DefaultPlainPort, nil
}
