// internal/archive/ftp.go
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultFTPTimeout bounds dial and every control command.
const DefaultFTPTimeout = 10 * time.Second

// Uploader copies a saved day file to a second location.
type Uploader interface {
	Upload(date string, data []byte) error
}

// FTPConfig addresses the upload target.
type FTPConfig struct {
	Server   string // host[:port], port 21 if omitted
	User     string
	Password string
	Path     string // remote base directory
	Timeout  time.Duration
}

// FTPUploader stores day files as <path>/<yyyy>/<yyyy-mm-dd>.csv.
// Each upload uses its own session; uploads are serialized.
type FTPUploader struct {
	mu  sync.Mutex
	cfg FTPConfig
}

func NewFTPUploader(cfg FTPConfig) (*FTPUploader, error) {
	if cfg.Server == "" {
		return nil, errors.New("archive: ftp server required")
	}
	if _, _, err := net.SplitHostPort(cfg.Server); err != nil {
		cfg.Server = net.JoinHostPort(cfg.Server, "21")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFTPTimeout
	}
	return &FTPUploader{cfg: cfg}, nil
}

func (u *FTPUploader) Upload(date string, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	c, err := ftp.Dial(u.cfg.Server, ftp.DialWithTimeout(u.cfg.Timeout))
	if err != nil {
		return fmt.Errorf("archive: ftp dial %s: %w", u.cfg.Server, err)
	}
	defer func() { _ = c.Quit() }()

	if err := c.Login(u.cfg.User, u.cfg.Password); err != nil {
		return fmt.Errorf("archive: ftp login: %w", err)
	}

	dir, name := remotePath(u.cfg.Path, date)
	if err := c.MakeDir(dir); err != nil && !alreadyExists(err) {
		return fmt.Errorf("archive: ftp mkdir %s: %w", dir, err)
	}
	if err := c.Stor(name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("archive: ftp store %s: %w", name, err)
	}
	return nil
}

func remotePath(base, date string) (dir, name string) {
	year := date
	if len(date) >= 4 {
		year = date[:4]
	}
	dir = path.Join(base, year)
	return dir, path.Join(dir, date+".csv")
}

// alreadyExists reports a MKD refusal. Servers answer 550 both for an
// existing directory and for missing rights; the latter fails at STOR.
func alreadyExists(err error) bool {
	var te *textproto.Error
	return errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable
}
