package intercept

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/atinyakov/CoOrganizer/internal/service"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// ImportedMessage replaces the body of a successfully imported download.
	ImportedMessage = "[shared item imported]"
	// UnauthorizedMessage replaces the body of a download for a foreign group.
	UnauthorizedMessage = "Unauthorized"

	// DefaultMaxBody bounds how much of a matched body is buffered.
	DefaultMaxBody int64 = 32 << 20
)

// Processor decides what happens to a matched response body.
type Processor interface {
	Process(ctx context.Context, body []byte) service.ImportResult
}

// Stats is a snapshot of the interceptor counters.
type Stats struct {
	Matched       int64 `json:"matched"`
	Imported      int64 `json:"imported"`
	Unauthorized  int64 `json:"unauthorized"`
	PassedThrough int64 `json:"passedThrough"`
	Forwarded     int64 `json:"forwarded"`
}

// Interceptor rewrites store responses on the import path. It is meant to
// be installed as httputil.ReverseProxy.ModifyResponse, so every response is
// fully processed before its first byte reaches the client.
type Interceptor struct {
	matcher  Matcher
	proc     Processor
	notifier service.Notifier
	maxBody  int64
	log      *zap.Logger

	matched      atomic.Int64
	imported     atomic.Int64
	unauthorized atomic.Int64
	passed       atomic.Int64
	forwarded    atomic.Int64
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithMaxBody overrides DefaultMaxBody. Larger bodies pass through untouched.
func WithMaxBody(n int64) Option {
	return func(ic *Interceptor) {
		if n > 0 {
			ic.maxBody = n
		}
	}
}

// WithImportNotifier reports successful imports to the user.
func WithImportNotifier(n service.Notifier) Option {
	return func(ic *Interceptor) { ic.notifier = n }
}

// New creates an Interceptor for responses selected by m.
func New(m Matcher, proc Processor, log *zap.Logger, opts ...Option) *Interceptor {
	if log == nil {
		log = zap.NewNop()
	}
	ic := &Interceptor{matcher: m, proc: proc, maxBody: DefaultMaxBody, log: log}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

// Matcher returns the matcher used to select responses.
func (ic *Interceptor) Matcher() Matcher { return ic.matcher }

// Stats returns the current counters.
func (ic *Interceptor) Stats() Stats {
	return Stats{
		Matched:       ic.matched.Load(),
		Imported:      ic.imported.Load(),
		Unauthorized:  ic.unauthorized.Load(),
		PassedThrough: ic.passed.Load(),
		Forwarded:     ic.forwarded.Load(),
	}
}

// ModifyResponse processes resp when its request targets the import path.
// It never returns an error: anything it cannot handle is passed through
// byte-for-byte.
func (ic *Interceptor) ModifyResponse(resp *http.Response) error {
	if resp == nil || !ic.matcher.MatchRequest(resp.Request) {
		return nil
	}
	ic.matched.Inc()

	orig := resp.Body
	buf, err := io.ReadAll(io.LimitReader(orig, ic.maxBody+1))
	if err != nil || int64(len(buf)) > ic.maxBody {
		if err != nil {
			ic.log.Warn("failed to read shared item", zap.Error(err))
		} else {
			ic.log.Warn("shared item too large, passing through", zap.Int64("limit", ic.maxBody))
		}
		resp.Body = &restoredBody{Reader: io.MultiReader(bytes.NewReader(buf), orig), closer: orig}
		ic.passed.Inc()
		return nil
	}
	_ = orig.Close()

	// a client hanging up must not abort an import halfway
	res := ic.proc.Process(context.WithoutCancel(resp.Request.Context()), buf)
	switch res.Outcome {
	case service.OutcomeSuccess:
		ic.imported.Inc()
		ic.forwarded.Add(int64(res.Forwarded))
		replaceBody(resp, http.StatusCreated, ImportedMessage)
		if ic.notifier != nil {
			ic.notifier.Success(importedNote(res))
		}
	case service.OutcomeUnauthorized:
		ic.unauthorized.Inc()
		replaceBody(resp, http.StatusUnauthorized, UnauthorizedMessage)
	default:
		ic.passed.Inc()
		ic.log.Debug("shared item passed through", zap.Error(res.Err))
		resp.Body = io.NopCloser(bytes.NewReader(buf))
	}
	return nil
}

func importedNote(res service.ImportResult) string {
	msg := fmt.Sprintf("Imported %d shared item(s)", res.Forwarded)
	if res.Group != nil {
		msg += " from " + res.Group.Name
	}
	return msg
}

func replaceBody(resp *http.Response, status int, body string) {
	resp.StatusCode = status
	resp.Status = fmt.Sprintf("%d %s", status, http.StatusText(status))
	resp.Body = io.NopCloser(bytes.NewReader([]byte(body)))
	resp.ContentLength = int64(len(body))
	resp.TransferEncoding = nil
	resp.Uncompressed = false
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Etag")
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

type restoredBody struct {
	io.Reader
	closer io.Closer
}

func (b *restoredBody) Close() error { return b.closer.Close() }
