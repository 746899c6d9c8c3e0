package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/dreamware/llmbalancer/internal/cluster"
	"github.com/dreamware/llmbalancer/internal/config"
)

// DefaultCommand powers the node off immediately.
const DefaultCommand = "sudo shutdown -h now"

// SSHExecutor issues the power-down command over SSH.
type SSHExecutor struct {
	// DialTimeout bounds TCP connect plus handshake.
	DialTimeout time.Duration
	// Linger is how long the session is kept open after the command starts,
	// so the remote side is not hung up on before shutdown takes hold.
	Linger time.Duration
}

// NewSSHExecutor returns an executor with default timeouts.
func NewSSHExecutor() *SSHExecutor {
	return &SSHExecutor{DialTimeout: 5 * time.Second, Linger: 10 * time.Second}
}

// PowerOff connects to node.AdminHost and starts the configured command.
func (e *SSHExecutor) PowerOff(ctx context.Context, node cluster.Node, creds config.NodeCredentials) error {
	if node.AdminHost == "" {
		return errors.New("no admin host configured")
	}
	clientCfg, err := clientConfig(creds, e.DialTimeout)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: e.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", node.AdminHost)
	if err != nil {
		return fmt.Errorf("dial %s: %w", node.AdminHost, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, node.AdminHost, clientCfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", node.AdminHost, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("open session: %w", err)
	}

	command := creds.Command
	if command == "" {
		command = DefaultCommand
	}
	if err := session.Start(command); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("start command: %w", err)
	}

	go func() {
		done := make(chan error, 1)
		go func() { done <- session.Wait() }()
		select {
		case err := <-done:
			// A dropped connection is the expected outcome of a power-off.
			logrus.WithField("node", node.ID).Debugf("shutdown session ended: %v", err)
		case <-time.After(e.Linger):
		}
		session.Close()
		client.Close()
	}()
	return nil
}

func clientConfig(creds config.NodeCredentials, timeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if creds.PrivateKeyFile != "" {
		pem, err := os.ReadFile(creds.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no usable credentials")
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec
	if creds.KnownHostsFile != "" {
		cb, err := knownhosts.New(creds.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logrus.Warn("no known_hosts_file configured; admin host key is not verified")
	}

	return &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}
