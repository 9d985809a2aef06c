package proxyhttp

import (
	"bytes"
	"errors"
	"io"

	"github.com/sslproxymanager/core/pkg/pool"
)

// bodyBufferPool reuses the scratch buffers used to stage a request or
// response body while body-replace rules run or streaming is disabled;
// bytes.Buffer's own Reset satisfies pool.Resettable.
var bodyBufferPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// errBodyTooLarge is returned by limitedReader once more than max bytes have
// been read, letting callers distinguish a size-cap trip from a genuine I/O
// error.
var errBodyTooLarge = errors.New("body exceeds configured size limit")

// limitedReader wraps r so reading past max bytes returns errBodyTooLarge
// instead of silently truncating, the way io.LimitReader would.
type limitedReader struct {
	r   io.Reader
	max int64
	n   int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, errBodyTooLarge
	}
	return n, err
}

// capReader returns r unchanged when max <= 0 (no limit configured),
// otherwise wraps it in a limitedReader.
func capReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitedReader{r: r, max: max}
}
