package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Version(t *testing.T) {
	assert.Equal(t, ExitSuccess, run([]string{"--version"}))
}

func TestRun_UnknownFlag(t *testing.T) {
	assert.Equal(t, ExitConfigError, run([]string{"--no-such-flag"}))
}

func TestRun_CheckInvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAUNCH_DEPLOY_LOCK_BACKEND", "etcd")

	assert.Equal(t, ExitConfigError, run([]string{"--check"}))
}

func TestPrintCheck(t *testing.T) {
	t.Run("remote engine with callback", func(t *testing.T) {
		cfg := &Config{
			Docker:   DockerConfig{Host: "tcp://10.0.0.5"},
			Deploy:   DeployConfig{LockBackend: LockBackendMemory},
			Callback: CallbackConfig{URL: "https://hooks.example.com/deploy", Secret: "s"},
		}

		var buf bytes.Buffer
		printCheck(&buf, cfg)

		out := buf.String()
		assert.Contains(t, out, "configuration ok")
		assert.Contains(t, out, "engine: remote tcp://10.0.0.5:2375")
		assert.Contains(t, out, "lock backend: memory")
		assert.Contains(t, out, "callback: https://hooks.example.com/deploy (signed: true)")
		assert.NotContains(t, out, "warning:")
	})

	t.Run("ssh engine", func(t *testing.T) {
		cfg := &Config{
			Docker: DockerConfig{Host: "ssh://deploy@build.example.com:2222"},
			Deploy: DeployConfig{LockBackend: LockBackendRedis},
		}

		var buf bytes.Buffer
		printCheck(&buf, cfg)

		out := buf.String()
		assert.Contains(t, out, "engine: ssh")
		assert.Contains(t, out, "ssh: deploy@build.example.com:2222")
		assert.Contains(t, out, "callback: disabled")
	})

	t.Run("fallback warning", func(t *testing.T) {
		cfg := &Config{
			Docker: DockerConfig{Host: "ftp://nowhere", SocketPath: "/run/docker.sock"},
			Deploy: DeployConfig{LockBackend: LockBackendMemory},
		}

		var buf bytes.Buffer
		printCheck(&buf, cfg)

		out := buf.String()
		assert.Contains(t, out, "engine: local unix:///run/docker.sock")
		assert.Contains(t, out, "warning: ")
	})

	t.Run("dotless registry host", func(t *testing.T) {
		cfg := &Config{
			Deploy:   DeployConfig{LockBackend: LockBackendMemory},
			Registry: RegistryConfig{Host: "myregistry"},
		}

		var buf bytes.Buffer
		printCheck(&buf, cfg)

		assert.Contains(t, buf.String(), `warning: registry host "myregistry" is not a hostname`)
	})

	t.Run("registry hostname", func(t *testing.T) {
		cfg := &Config{
			Deploy:   DeployConfig{LockBackend: LockBackendMemory},
			Registry: RegistryConfig{Host: "registry.example.com:5000"},
		}

		var buf bytes.Buffer
		printCheck(&buf, cfg)

		assert.NotContains(t, buf.String(), "warning:")
	})
}

func TestExitCode(t *testing.T) {
	serverErr := &ServerError{Op: "NewServer", Err: errors.New("boom"), ExitCode: ExitDockerError}

	assert.Equal(t, ExitDockerError, exitCode(serverErr))
	assert.Equal(t, ExitDockerError, exitCode(fmt.Errorf("wrapped: %w", serverErr)))
	assert.Equal(t, ExitConfigError, exitCode(errors.New("plain")))
}

func TestServerErrorAttrs(t *testing.T) {
	serverErr := &ServerError{Op: "Start", Err: errors.New("listen"), ExitCode: ExitHTTPServerError}

	attrs := serverErrorAttrs(serverErr)
	assert.Equal(t, []any{"error", serverErr.Err, "operation", "Start"}, attrs)
	assert.Len(t, serverErrorAttrs(errors.New("plain")), 2)
}
