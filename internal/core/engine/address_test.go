package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Resolve Tests
// =============================================================================

func TestResolve_EmptyAddressUsesLocalSocket(t *testing.T) {
	conn, warnings := Resolve(Settings{})

	assert.Equal(t, LocalSocket{Path: DefaultSocketPath}, conn)
	assert.Equal(t, ModeLocal, conn.Mode())
	assert.Equal(t, "unix:///var/run/docker.sock", conn.Host())
	assert.Empty(t, warnings)
}

func TestResolve_CustomSocketPath(t *testing.T) {
	conn, _ := Resolve(Settings{SocketPath: "/run/user/1000/docker.sock"})
	assert.Equal(t, LocalSocket{Path: "/run/user/1000/docker.sock"}, conn)
}

func TestResolve_UnixURI(t *testing.T) {
	conn, warnings := Resolve(Settings{Address: "unix:///tmp/engine.sock"})

	assert.Equal(t, LocalSocket{Path: "/tmp/engine.sock"}, conn)
	assert.Empty(t, warnings)
}

func TestResolve_BarePath(t *testing.T) {
	conn, warnings := Resolve(Settings{Address: "/var/run/alt.sock"})

	assert.Equal(t, LocalSocket{Path: "/var/run/alt.sock"}, conn)
	assert.Empty(t, warnings)
}

func TestResolve_TCP(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		expected RemoteTCP
	}{
		{
			name:     "explicit port",
			settings: Settings{Address: "tcp://10.0.0.5:4243"},
			expected: RemoteTCP{Hostname: "10.0.0.5", Port: 4243},
		},
		{
			name:     "plain default port",
			settings: Settings{Address: "tcp://engine.internal"},
			expected: RemoteTCP{Hostname: "engine.internal", Port: DefaultPlainPort},
		},
		{
			name:     "tls default port",
			settings: Settings{Address: "tcp://engine.internal", TLS: true, CertDir: "/certs"},
			expected: RemoteTCP{Hostname: "engine.internal", Port: DefaultTLSPort, TLS: true, CertDir: "/certs"},
		},
		{
			name:     "configured port",
			settings: Settings{Address: "engine.internal", Port: 3000},
			expected: RemoteTCP{Hostname: "engine.internal", Port: 3000},
		},
		{
			name:     "https implies tls",
			settings: Settings{Address: "https://engine.internal"},
			expected: RemoteTCP{Hostname: "engine.internal", Port: DefaultTLSPort, TLS: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, warnings := Resolve(tt.settings)
			require.Empty(t, warnings)
			assert.Equal(t, tt.expected, conn)
			assert.Equal(t, ModeRemote, conn.Mode())
		})
	}
}

func TestResolve_RemoteTCP_Host(t *testing.T) {
	conn := RemoteTCP{Hostname: "10.0.0.5", Port: 2376}
	assert.Equal(t, "tcp://10.0.0.5:2376", conn.Host())

	v6 := RemoteTCP{Hostname: "::1", Port: 2375}
	assert.Equal(t, "tcp://[::1]:2375", v6.Host())
}

func TestResolve_SSH(t *testing.T) {
	conn, warnings := Resolve(Settings{
		Address:    "ssh://deploy@build-01:2222/run/docker.sock",
		SSHKeyPath: "/keys/id_ed25519",
	})
	require.Empty(t, warnings)

	assert.Equal(t, SSHTunnel{
		User:       "deploy",
		Hostname:   "build-01",
		Port:       2222,
		SocketPath: "/run/docker.sock",
		KeyPath:    "/keys/id_ed25519",
	}, conn)
	assert.Equal(t, "build-01:2222", conn.(SSHTunnel).Addr())
}

func TestResolve_SSHDefaults(t *testing.T) {
	conn, warnings := Resolve(Settings{Address: "ssh://build-01", SSHUser: "ops"})
	require.Empty(t, warnings)

	tunnel, ok := conn.(SSHTunnel)
	require.True(t, ok)
	assert.Equal(t, "ops", tunnel.User)
	assert.Equal(t, DefaultSSHPort, tunnel.Port)
	assert.Equal(t, DefaultSocketPath, tunnel.SocketPath)
}

func TestResolve_MalformedFallsBackToLocal(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
	}{
		{"unknown scheme", Settings{Address: "ftp://engine"}},
		{"bad port", Settings{Address: "tcp://engine:notaport"}},
		{"port out of range", Settings{Address: "tcp://engine:99999"}},
		{"configured port out of range", Settings{Address: "engine", Port: 70000}},
		{"missing host", Settings{Address: "tcp://"}},
		{"unparsable", Settings{Address: "tcp://%zz"}},
		{"ssh without user", Settings{Address: "ssh://build-01"}},
		{"unix without path", Settings{Address: "unix://"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, warnings := Resolve(tt.settings)
			assert.Equal(t, LocalSocket{Path: DefaultSocketPath}, conn)
			assert.Len(t, warnings, 1)
		})
	}
}
