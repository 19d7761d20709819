package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/shell/docker"
	"github.com/artpar/relaunch/internal/shell/metrics"
)

func newTestService(engine *fakeEngine, cfg Config, opts ...ServiceOption) (*Service, *fakeQueue, *stubHistory) {
	queue := &fakeQueue{}
	history := &stubHistory{}
	m := metrics.New()
	opts = append([]ServiceOption{WithCallbackQueue(queue), WithHistory(history), WithMetrics(m)}, opts...)
	svc := NewService(NewDeployer(engine, cfg, m, setupTestLogger()), setupTestLogger(), opts...)
	return svc, queue, history
}

func TestServiceDeploy_EndToEnd(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, history := newTestService(engine, Config{})

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.Code)
	_, parseErr := uuid.Parse(resp.DeploymentID)
	assert.NoError(t, parseErr, "deployment id must be a UUID")

	payloads := queue.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, resp.DeploymentID, payloads[0].DeploymentID)
	assert.Equal(t, "web1", payloads[0].Params.Name)
	assert.True(t, payloads[0].Success)
	assert.False(t, payloads[0].FinishedAt.Before(payloads[0].StartedAt))

	require.Len(t, history.records, 1)
	assert.Equal(t, resp.DeploymentID, history.records[0].ID)
	assert.Equal(t, domain.StageDone, history.records[0].Stage)
}

func TestServiceDeploy_FailureStillNotifiesOnce(t *testing.T) {
	engine := newFakeEngine()
	engine.pullErr = docker.NewDockerError("PullImage", "image", "library/nginx:alpine", "image not found", docker.ErrImageNotFound)
	svc, queue, history := newTestService(engine, Config{})

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Code)
	assert.Contains(t, resp.Error, "image not found")
	assert.Contains(t, resp.Stderr, "pulling:")

	payloads := queue.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, resp.DeploymentID, payloads[0].DeploymentID)
	assert.False(t, payloads[0].Success)
	assert.Equal(t, resp.Error, payloads[0].Error)

	require.Len(t, history.records, 1)
	assert.Equal(t, domain.StagePulling, history.records[0].Stage)
}

func TestServiceDeploy_DistinctIDsPerInvocation(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, _ := newTestService(engine, Config{})

	first, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)
	second, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.DeploymentID, second.DeploymentID)
	payloads := queue.Payloads()
	require.Len(t, payloads, 2)
	assert.Equal(t, first.DeploymentID, payloads[0].DeploymentID)
	assert.Equal(t, second.DeploymentID, payloads[1].DeploymentID)
}

func TestServiceDeploy_WarningsReachResponseAndCallback(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, _ := newTestService(engine, Config{})

	req := nginxRequest()
	req.Volumes = []string{"/onlyone"}
	req.Env = []string{"FOOBAR", "SECRET=hunter2"}
	resp, err := svc.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Len(t, resp.Warnings, 2)

	payloads := queue.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, resp.Warnings, payloads[0].Warnings)
	assert.Equal(t, []string{"/onlyone"}, payloads[0].Params.Volumes)
}

func TestServiceDeploy_ConcurrentSameNameRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.pullBlock = make(chan struct{})
	svc, queue, history := newTestService(engine, Config{})

	firstDone := make(chan domain.DeployResponse)
	go func() {
		resp, _ := svc.Deploy(context.Background(), nginxRequest())
		firstDone <- resp
	}()

	// Wait until the first deploy is inside the pull.
	require.Eventually(t, func() bool {
		return len(engine.Calls()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeploymentInProgress)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Code)
	assert.NotEmpty(t, resp.DeploymentID)

	close(engine.pullBlock)
	first := <-firstDone
	assert.True(t, first.Success)
	assert.NotEqual(t, first.DeploymentID, resp.DeploymentID)

	payloads := queue.Payloads()
	require.Len(t, payloads, 2)
	ids := []string{payloads[0].DeploymentID, payloads[1].DeploymentID}
	assert.ElementsMatch(t, []string{first.DeploymentID, resp.DeploymentID}, ids)

	history.mu.Lock()
	defer history.mu.Unlock()
	assert.Len(t, history.records, 2)
}

func TestServiceDeploy_LockBackendErrorIsFailure(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, _ := newTestService(engine, Config{}, WithLocker(failingLocker{}))

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "lock backend down")
	assert.Empty(t, engine.Calls())
	assert.Len(t, queue.Payloads(), 1)
}

func TestServiceDeploy_HistoryErrorIgnored(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, history := newTestService(engine, Config{})
	history.err = errors.New("disk full")

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Len(t, queue.Payloads(), 1)
}

func TestServiceDeploy_NoCollaborators(t *testing.T) {
	engine := newFakeEngine()
	svc := NewService(NewDeployer(engine, Config{}, nil, nil), nil)

	resp, err := svc.Deploy(context.Background(), nginxRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestServiceDeploy_FixedID(t *testing.T) {
	engine := newFakeEngine()
	svc, queue, _ := newTestService(engine, Config{})
	svc.newID = func() string { return "fixed-id" }

	resp, _ := svc.Deploy(context.Background(), nginxRequest())

	assert.Equal(t, "fixed-id", resp.DeploymentID)
	require.Len(t, queue.Payloads(), 1)
	assert.Equal(t, "fixed-id", queue.Payloads()[0].DeploymentID)
	require.Len(t, engine.created, 1)
	assert.Equal(t, "fixed-id", engine.created[0].Labels["com.relaunch.deployment"])
}

func TestService_WaitForInFlight(t *testing.T) {
	engine := newFakeEngine()
	engine.pullBlock = make(chan struct{})
	svc, queue, _ := newTestService(engine, Config{})

	deployDone := make(chan struct{})
	go func() {
		svc.Deploy(context.Background(), nginxRequest())
		close(deployDone)
	}()
	require.Eventually(t, func() bool {
		return len(engine.Calls()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	// Still pulling: Wait gives up when its context does.
	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(shortCtx), context.DeadlineExceeded)
	assert.Empty(t, queue.Payloads())

	waitErr := make(chan error)
	go func() { waitErr <- svc.Wait(context.Background()) }()

	close(engine.pullBlock)
	select {
	case err := <-waitErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the deployment finished")
	}

	// The callback is queued before Wait releases.
	assert.Len(t, queue.Payloads(), 1)
	<-deployDone
}

func TestService_WaitIdle(t *testing.T) {
	svc, _, _ := newTestService(newFakeEngine(), Config{})
	assert.NoError(t, svc.Wait(context.Background()))
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}
