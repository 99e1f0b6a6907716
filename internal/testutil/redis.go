//go:build integration

// Package testutil starts the external services used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dyluth/appraise/pkg/ledger"
)

const redisPort nat.Port = "6379/tcp"

// StartRedis runs a throwaway Redis container and returns its URL.
// The container is terminated when the test finishes.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{string(redisPort)},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.AutoRemove = true
		},
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)

	port, err := redisC.MappedPort(ctx, redisPort)
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// NewLedger connects a ledger client for instanceName to a fresh Redis container.
func NewLedger(t *testing.T, instanceName string) *ledger.Client {
	t.Helper()

	opts, err := redis.ParseURL(StartRedis(t))
	require.NoError(t, err)

	client, err := ledger.NewClient(opts, instanceName)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()))
	return client
}
