package deploy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/shell/docker"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine is an in-memory docker.Client that records every call.
type fakeEngine struct {
	mu sync.Mutex

	containers map[string]*docker.ContainerInfo // by name
	calls      []string
	created    []docker.ContainerSpec
	pulls      []pullCall

	pullErr    error
	inspectErr error
	stopErr    error
	removeErr  error
	createErr  error
	startErr   error
	pruneErr   error

	// pullBlock, when set, is waited on inside PullImage.
	pullBlock chan struct{}
}

type pullCall struct {
	image string
	opts  docker.PullOptions
}

var _ docker.Client = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{containers: make(map[string]*docker.ContainerInfo)}
}

func (f *fakeEngine) addContainer(name, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = &docker.ContainerInfo{ID: id, Name: name, Status: docker.ContainerStatusRunning, Running: true}
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) PullImage(ctx context.Context, image string, opts docker.PullOptions) (*docker.PullResult, error) {
	f.mu.Lock()
	f.record("pull " + image)
	f.pulls = append(f.pulls, pullCall{image: image, opts: opts})
	block := f.pullBlock
	err := f.pullErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &docker.PullResult{Status: "Status: Downloaded newer image for " + image}, nil
}

func (f *fakeEngine) PruneImages(ctx context.Context) (*docker.PruneReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prune")
	if f.pruneErr != nil {
		return nil, f.pruneErr
	}
	return &docker.PruneReport{ImagesDeleted: 1, SpaceReclaimed: 1024}, nil
}

func (f *fakeEngine) InspectContainer(ctx context.Context, nameOrID string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect " + nameOrID)
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	info, ok := f.containers[nameOrID]
	if !ok {
		return nil, docker.NewDockerError("InspectContainer", "container", nameOrID, "container not found", docker.ErrContainerNotFound)
	}
	copied := *info
	return &copied, nil
}

func (f *fakeEngine) StopContainer(ctx context.Context, nameOrID string, timeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop " + nameOrID)
	if f.stopErr != nil {
		return f.stopErr
	}
	if info, ok := f.containers[nameOrID]; ok {
		info.Running = false
		info.Status = docker.ContainerStatusExited
	}
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, nameOrID string, opts docker.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove " + nameOrID)
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.containers[nameOrID]; !ok {
		return docker.NewDockerError("RemoveContainer", "container", nameOrID, "container not found", docker.ErrContainerNotFound)
	}
	delete(f.containers, nameOrID)
	return nil
}

func (f *fakeEngine) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create " + spec.Name)
	if f.createErr != nil {
		return "", f.createErr
	}
	if _, exists := f.containers[spec.Name]; exists {
		return "", docker.NewDockerError("CreateContainer", "container", spec.Name, "container already exists", docker.ErrContainerAlreadyExists)
	}
	id := "c0ffee" + spec.Name + "0000000000"
	f.containers[spec.Name] = &docker.ContainerInfo{ID: id, Name: spec.Name, Image: spec.Image, Status: docker.ContainerStatusCreated, Labels: spec.Labels}
	f.created = append(f.created, spec)
	return id, nil
}

func (f *fakeEngine) StartContainer(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start " + containerID)
	if f.startErr != nil {
		return f.startErr
	}
	for _, info := range f.containers {
		if info.ID == containerID {
			info.Running = true
			info.Status = docker.ContainerStatusRunning
			return nil
		}
	}
	return docker.NewDockerError("StartContainer", "container", containerID, "container not found", docker.ErrContainerNotFound)
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func (f *fakeEngine) Close() error { return nil }

// fakeQueue collects enqueued callback payloads.
type fakeQueue struct {
	mu       sync.Mutex
	payloads []domain.CallbackPayload
}

func (q *fakeQueue) Enqueue(p domain.CallbackPayload) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, p)
	return true
}

func (q *fakeQueue) Payloads() []domain.CallbackPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.CallbackPayload(nil), q.payloads...)
}

// stubHistory collects recorded deployments.
type stubHistory struct {
	mu      sync.Mutex
	records []domain.DeploymentRecord
	err     error
}

func (h *stubHistory) CreateDeployment(ctx context.Context, rec *domain.DeploymentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, *rec)
	return nil
}

func nginxRequest() domain.DeployRequest {
	return domain.DeployRequest{
		Name:          "web1",
		Repo:          "library/nginx",
		Version:       "alpine",
		Port:          8080,
		ContainerPort: 80,
	}
}
