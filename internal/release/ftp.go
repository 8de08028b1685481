package release

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/firefly-engineering/netbsd-imager/internal/logging"
)

// FTPLister lists directories over an anonymous FTP control connection.
// The connection is opened on first use and reused until Close.
type FTPLister struct {
	Addr     string
	User     string
	Password string
	Timeout  time.Duration

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// NewFTPLister creates an FTPLister for addr (host:port).
func NewFTPLister(addr, user, password string, timeout time.Duration) *FTPLister {
	return &FTPLister{
		Addr:     addr,
		User:     user,
		Password: password,
		Timeout:  timeout,
	}
}

// List returns the NLST listing of dir.
func (f *FTPLister) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		conn, err := f.dial(ctx)
		if err != nil {
			return nil, err
		}
		f.conn = conn
	}

	logging.Debug("listing mirror directory", "addr", f.Addr, "dir", dir)
	entries, err := f.conn.NameList(dir)
	if err != nil {
		// The control connection may be unusable after a failed transfer.
		_ = f.conn.Quit()
		f.conn = nil
		return nil, fmt.Errorf("NLST %s: %w", dir, err)
	}
	return entries, nil
}

// Close ends the session if one is open.
func (f *FTPLister) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	return err
}

func (f *FTPLister) dial(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.Timeout))
	}

	conn, err := ftp.Dial(f.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", f.Addr, err)
	}

	if err := conn.Login(f.User, f.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to log in to %s: %w", f.Addr, err)
	}

	return conn, nil
}
