// Package admin implements the out-of-band administrative channel used to
// power down a designated low-power node.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/config"
)

//go:generate mockgen -destination=executor_mock_test.go -package=admin . Executor

// Executor performs the power-down on a node. Implementations must return
// once the command has been issued; they do not wait for the node to halt.
type Executor interface {
	PowerOff(ctx context.Context, node cluster.Node, creds config.NodeCredentials) error
}

// Result is the outcome reported to the operator.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Channel gates Executor calls behind the node's administrable flag and the
// credentials held in Secrets. It never touches cluster state.
type Channel struct {
	secrets  *config.Secrets
	executor Executor
	timeout  time.Duration
}

// NewChannel creates a Channel. A nil secrets value behaves as "no
// credentials configured".
func NewChannel(secrets *config.Secrets, executor Executor) *Channel {
	return &Channel{secrets: secrets, executor: executor, timeout: 15 * time.Second}
}

// Shutdown asks node to power down. Failures are reported in the Result;
// Shutdown never returns an error and never panics on bad input.
func (c *Channel) Shutdown(ctx context.Context, node cluster.Node) Result {
	log := logrus.WithField("node", node.ID)

	if !node.Administrable {
		return Result{Message: fmt.Sprintf("node %s is not administrable", node.ID)}
	}
	creds, ok := c.secrets.Credentials(node.ID)
	if !ok {
		log.Warn("shutdown refused: no administrative credentials configured")
		return Result{Message: fmt.Sprintf("no administrative credentials configured for node %s", node.ID)}
	}
	if c.executor == nil {
		return Result{Message: "administrative channel is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.executor.PowerOff(ctx, node, creds); err != nil {
		log.Errorf("shutdown failed: %v", err)
		return Result{Message: fmt.Sprintf("shutdown of %s failed: %v", node.ID, err)}
	}

	log.Warn("shutdown command issued")
	return Result{Success: true, Message: fmt.Sprintf("shutdown command sent to %s", node.Name)}
}
