// Package sshcheck proves that a finished image accepts SSH logins.
//
// The image is booted in snapshot mode, an ephemeral key is authorized on
// the console, and the key is then used over the forwarded SSH port. The
// snapshot is discarded on exit, so the image itself never learns the key.
package sshcheck

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
	"github.com/firefly-engineering/netbsd-imager/internal/provision"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
)

const (
	// DefaultCommand is run over SSH to prove the login works.
	DefaultCommand = "uname -sr"

	keyComment   = "netbsd-imager-verify"
	dialTimeout  = 10 * time.Second
	retryBackoff = 2 * time.Second
)

// Verifier boots an image and logs in to it over SSH.
type Verifier struct {
	// Driver boots the image. Its booter must use a snapshot.
	Driver *session.Driver

	// User is the account to authorize and log in as.
	User string

	// Addr is the host side of the forwarded SSH port.
	Addr string

	// Timeout bounds the SSH attempts after login.
	Timeout time.Duration

	// Command is run over SSH. Defaults to DefaultCommand.
	Command string
}

// GenerateKey returns an ephemeral ed25519 signer and its authorized_keys line.
func GenerateKey() (ssh.Signer, string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create signer: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))) + " " + keyComment
	return signer, line, nil
}

// Verify boots the image, authorizes an ephemeral key, and returns the
// output of Command run over SSH.
func (v *Verifier) Verify(ctx context.Context) (string, error) {
	signer, keyLine, err := GenerateKey()
	if err != nil {
		return "", imgerrors.SSHError("verification failed", err)
	}

	s, err := v.Driver.Start(ctx)
	if err != nil {
		return "", err
	}
	// The snapshot is thrown away, so there is nothing to shut down cleanly.
	defer s.Kill()

	for _, cmd := range provision.AuthorizedKeysCommands(v.User, []string{keyLine}) {
		rc, err := s.Run(ctx, cmd, 0)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", imgerrors.EmulatorFailed("command", fmt.Errorf("%q: %w", cmd, err))
		}
		if rc != 0 {
			return "", imgerrors.CommandFailed(cmd, rc)
		}
	}

	out, err := v.run(ctx, signer)
	if err != nil {
		return "", imgerrors.SSHError(fmt.Sprintf("ssh %s@%s failed", v.User, v.Addr), err)
	}
	return out, nil
}

// run dials until the guest's sshd answers or the timeout expires.
func (v *Verifier) run(ctx context.Context, signer ssh.Signer) (string, error) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := v.Command
	if command == "" {
		command = DefaultCommand
	}

	cfg := &ssh.ClientConfig{
		User: v.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// The guest's host key is generated on first boot and discarded
		// with the snapshot; there is nothing to pin it against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		out, err := runOnce(ctx, v.Addr, cfg, command)
		if err == nil {
			logging.Debug("ssh verification succeeded", "addr", v.Addr, "attempt", attempt)
			return strings.TrimSpace(out), nil
		}
		lastErr = err
		logging.Debug("ssh attempt failed", "addr", v.Addr, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(retryBackoff):
		}
	}
}

func runOnce(ctx context.Context, addr string, cfg *ssh.ClientConfig, command string) (string, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}

	// An sshd that is still starting may accept and then stall.
	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return "", err
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(command)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
