package sshcheck

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/ssh"

	imgerrors "github.com/firefly-engineering/netbsd-imager/internal/errors"
	"github.com/firefly-engineering/netbsd-imager/internal/session"
	"github.com/firefly-engineering/netbsd-imager/internal/session/sessiontest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var echoKeyRe = regexp.MustCompile(`echo '([^']+)' >>`)

// keyRing collects the keys the guest shell was asked to authorize.
type keyRing struct {
	mu   sync.Mutex
	keys []ssh.PublicKey
}

func (k *keyRing) capture(cmd string) {
	m := echoKeyRe.FindStringSubmatch(cmd)
	if m == nil {
		return
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(m[1]))
	if err != nil {
		return
	}
	k.mu.Lock()
	k.keys = append(k.keys, pub)
	k.mu.Unlock()
}

func (k *keyRing) authorized(key ssh.PublicKey) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, a := range k.keys {
		if bytes.Equal(a.Marshal(), key.Marshal()) {
			return true
		}
	}
	return false
}

// startSSHD runs a minimal sshd that answers every exec request with output.
func startSSHD(t *testing.T, ring *keyRing, user, output string) string {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == user && ring.authorized(key) {
				return nil, nil
			}
			return nil, errors.New("unauthorized")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				serveConn(conn, cfg, output)
			}()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
	})
	return ln.Addr().String()
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig, output string) {
	defer conn.Close()

	sc, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		for req := range requests {
			if req.Type != "exec" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			_, _ = ch.Write([]byte(output + "\n"))
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			_ = ch.Close()
		}
	}
}

func newVerifier(shell *sessiontest.Shell, addr string) *Verifier {
	d := session.NewDriver(sessiontest.NewBooter(shell), "root", "")
	return &Verifier{
		Driver:  d,
		User:    "root",
		Addr:    addr,
		Timeout: 5 * time.Second,
	}
}

func TestGenerateKey(t *testing.T) {
	signer, line, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(line, "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(line, " netbsd-imager-verify"))

	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, "netbsd-imager-verify", comment)
	assert.Equal(t, signer.PublicKey().Marshal(), pub.Marshal())
}

func TestVerify(t *testing.T) {
	ring := &keyRing{}
	addr := startSSHD(t, ring, "root", "NetBSD 8.1_STABLE")

	shell := sessiontest.NewShell()
	shell.OnCommand = ring.capture

	out, err := newVerifier(shell, addr).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NetBSD 8.1_STABLE", out)

	assert.True(t, shell.Killed(), "the snapshot guest is discarded")
	assert.Contains(t, strings.Join(shell.Commands(), "\n"), "/root/.ssh/authorized_keys")
}

func TestVerify_KeyNotAccepted(t *testing.T) {
	// The guest never records the key, so every login is refused.
	addr := startSSHD(t, &keyRing{}, "root", "unused")

	v := newVerifier(sessiontest.NewShell(), addr)
	v.Timeout = 100 * time.Millisecond

	_, err := v.Verify(context.Background())
	require.Error(t, err)
	assert.Equal(t, imgerrors.ExitSSHError, imgerrors.GetExitCode(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerify_KeyInstallFails(t *testing.T) {
	shell := sessiontest.NewShell()
	shell.Results["mkdir -p /root/.ssh && chmod 700 /root/.ssh"] = sessiontest.Result{Status: 1}

	_, err := newVerifier(shell, "127.0.0.1:1").Verify(context.Background())
	require.Error(t, err)
	assert.Equal(t, imgerrors.ExitCommandFailed, imgerrors.GetExitCode(err))
	assert.True(t, shell.Killed())
}

func TestVerify_BootFails(t *testing.T) {
	shell := sessiontest.NewShell()
	shell.NoLogin = true
	v := newVerifier(shell, "127.0.0.1:1")
	v.Driver.BootTimeout = time.Millisecond

	_, err := v.Verify(context.Background())
	require.Error(t, err)
	assert.Equal(t, imgerrors.ExitEmulatorFailed, imgerrors.GetExitCode(err))
}
