package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestServer is a throwaway NATS server in a container with a connected Client
type TestServer struct {
	Client    *Client
	URL       string
	container testcontainers.Container
}

type testConfig struct {
	jetstream    bool
	buckets      []string
	version      string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures StartTestServer
type TestOption func(*testConfig)

// WithJetStream starts the server with JetStream enabled
func WithJetStream() TestOption {
	return func(cfg *testConfig) { cfg.jetstream = true }
}

// WithKVBuckets enables JetStream and creates the named buckets
func WithKVBuckets(buckets ...string) TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = true
		cfg.buckets = append(cfg.buckets, buckets...)
	}
}

// WithNATSVersion selects the nats image tag
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) { cfg.version = version }
}

// StartTestServer starts a container and connects a client to it. Call
// Terminate when done, or use NewTestServer in tests.
func StartTestServer(ctx context.Context, opts ...TestOption) (*TestServer, error) {
	cfg := &testConfig{
		version:      "2.11.7-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	args := []string{"--port", "4222", "--http_port", "8222"}
	if cfg.jetstream {
		args = append(args, "--js")
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:" + cfg.version,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          args,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start NATS container: %w", err)
	}
	ts := &TestServer{container: container}

	host, err := container.Host(ctx)
	if err != nil {
		ts.Terminate()
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		ts.Terminate()
		return nil, fmt.Errorf("mapped port: %w", err)
	}
	ts.URL = fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := NewClient(ts.URL, WithTimeout(cfg.timeout), WithMaxReconnects(0))
	if err != nil {
		ts.Terminate()
		return nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		ts.Terminate()
		return nil, err
	}
	ts.Client = client

	for _, bucket := range cfg.buckets {
		if _, err := client.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: bucket}); err != nil {
			ts.Terminate()
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return ts, nil
}

// NewTestServer is StartTestServer that fails t on error and terminates on cleanup
func NewTestServer(t testing.TB, opts ...TestOption) *TestServer {
	t.Helper()
	ts, err := StartTestServer(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NATS test server: %v", err)
	}
	t.Cleanup(ts.Terminate)
	return ts
}

// Terminate closes the client and removes the container
func (ts *TestServer) Terminate() {
	ctx := context.Background()
	if ts.Client != nil {
		_ = ts.Client.Close(ctx)
	}
	if ts.container != nil {
		_ = ts.container.Terminate(ctx)
		ts.container = nil
	}
}

// KV returns a store on bucket, creating the bucket if needed
func (ts *TestServer) KV(ctx context.Context, bucket string) (*KVStore, error) {
	kv, err := ts.Client.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: bucket, History: 5})
	if err != nil {
		return nil, err
	}
	return NewKVStore(kv, ts.Client.logger), nil
}
