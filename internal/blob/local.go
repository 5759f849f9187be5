package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Local keeps documents as files under a single directory.
type Local struct {
	dir string
}

// NewLocal creates dir if needed and returns a store rooted there.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, eris.New("blob: directory must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create %s", dir)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", eris.Errorf("blob: invalid object name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

// Put writes to a temp file in the same directory and renames it into place,
// so readers never observe a partial object.
func (l *Local) Put(ctx context.Context, name string, r io.Reader) error {
	dst, err := l.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.dir, ".put-*")
	if err != nil {
		return eris.Wrap(err, "blob: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "blob: write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "blob: finalize %s", name)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return eris.Wrapf(err, "blob: rename %s", name)
	}
	return nil
}

func (l *Local) Fetch(ctx context.Context, name, dest string) error {
	rc, err := l.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "blob: create %s", dest)
	}
	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: rc}); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "blob: copy %s", name)
	}
	return out.Close()
}

func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", name)
	}
	return f, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
