package reliability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/pysugar/aoai-nexus/internal/logging"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed upstream response is kept as detail.
const maxErrorBody = 64 * 1024

// Request is one upstream call. Body is resent unchanged on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	return req, nil
}

// Result is a fully read, successful non-stream response.
type Result struct {
	Status   int
	Header   http.Header
	Body     []byte
	Attempts int
}

// Consumer takes over a successful streaming response. body is guarded by the
// first-byte and idle timers of the attempt.
type Consumer interface {
	Consume(ctx context.Context, resp *http.Response, body io.Reader) error
	// Committed reports whether any byte has reached the caller.
	Committed() bool
}

// Engine executes upstream calls under a Policy.
type Engine struct {
	client *http.Client
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	rand   func() float64
}

type Option func(*Engine)

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithRand replaces the jitter source.
func WithRand(rnd func() float64) Option {
	return func(e *Engine) { e.rand = rnd }
}

// NewEngine wraps client. The client must not set its own Timeout; the policy owns timing.
func NewEngine(client *http.Client, logger *zap.Logger, opts ...Option) *Engine {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{client: client, logger: logger, sleep: sleepContext, rand: rand.Float64}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs a non-stream call. Each attempt is bounded by the connect timeout until
// headers arrive and by the request timeout through the end of the body. It returns a
// *Failure when the budget is spent or a non-retryable failure occurs, and the parent
// context's error when the caller went away.
func (e *Engine) Do(ctx context.Context, p Policy, req Request) (*Result, error) {
	log := logging.FromContext(ctx, e.logger)
	attempts := p.Attempts()
	for attempt := 1; ; attempt++ {
		res, err := e.doOnce(ctx, p, req)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var failure *Failure
		switch {
		case err != nil:
			failure = &Failure{Classification: ClassifyError(err), Attempts: attempt, Err: err}
		case res.Status >= 200 && res.Status < 300:
			res.Attempts = attempt
			return res, nil
		default:
			failure = &Failure{
				Classification: ClassifyStatus(p, res.Status, string(res.Body)),
				UpstreamStatus: res.Status,
				RetryAfter:     RetryAfter(res.Header, time.Now()),
				Attempts:       attempt,
			}
		}

		if !failure.Retryable || attempt >= attempts {
			return nil, failure
		}
		if err := e.backoff(ctx, log, p, attempt, failure); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) doOnce(ctx context.Context, p Policy, req Request) (*Result, error) {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if p.RequestTimeout > 0 {
		var stop context.CancelFunc
		actx, stop = context.WithTimeoutCause(actx, p.RequestTimeout, ErrRequestTimeout)
		defer stop()
	}

	resp, err := e.send(actx, cancel, p, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := io.Reader(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limit = io.LimitReader(resp.Body, maxErrorBody)
	}
	body, err := io.ReadAll(limit)
	if err != nil {
		return nil, withCause(actx, err)
	}
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// send issues one attempt with the connect timer armed until response headers arrive.
func (e *Engine) send(actx context.Context, cancel context.CancelCauseFunc, p Policy, req Request) (*http.Response, error) {
	httpReq, err := req.build(actx)
	if err != nil {
		return nil, err
	}
	var connect *time.Timer
	if p.ConnectTimeout > 0 {
		connect = time.AfterFunc(p.ConnectTimeout, func() { cancel(ErrConnectTimeout) })
	}
	resp, err := e.client.Do(httpReq)
	if connect != nil {
		connect.Stop()
	}
	if err != nil {
		return nil, withCause(actx, err)
	}
	return resp, nil
}

// Stream runs a streaming call. A failed attempt is retried only while the consumer
// has not committed; after that the failure is returned as STREAM_INTERRUPTED with
// Committed set so the caller reports it in-band.
func (e *Engine) Stream(ctx context.Context, p Policy, req Request, consumer Consumer) (int, error) {
	log := logging.FromContext(ctx, e.logger)
	attempts := p.Attempts()
	for attempt := 1; ; attempt++ {
		failure := e.streamOnce(ctx, p, req, consumer, attempt)
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if failure == nil {
			return attempt, nil
		}
		if failure.Committed {
			failure.Classification = Interrupted(failure.Classification)
			return attempt, failure
		}
		if !failure.Retryable || attempt >= attempts {
			return attempt, failure
		}
		if err := e.backoff(ctx, log, p, attempt, failure); err != nil {
			return attempt, err
		}
	}
}

func (e *Engine) streamOnce(ctx context.Context, p Policy, req Request, consumer Consumer, attempt int) *Failure {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, err := e.send(actx, cancel, p, req)
	if err != nil {
		return &Failure{Classification: ClassifyError(err), Attempts: attempt, Err: err}
	}
	defer resp.Body.Close()

	wd := newWatchdog(resp.Body, p.FirstByteTimeout, p.IdleTimeout, cancel)
	defer wd.stop()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, err := io.ReadAll(io.LimitReader(wd, maxErrorBody))
		if err != nil {
			err = withCause(actx, err)
			return &Failure{Classification: ClassifyError(err), Attempts: attempt, Err: err}
		}
		return &Failure{
			Classification: ClassifyStatus(p, resp.StatusCode, string(detail)),
			UpstreamStatus: resp.StatusCode,
			RetryAfter:     RetryAfter(resp.Header, time.Now()),
			Attempts:       attempt,
		}
	}

	if err := consumer.Consume(actx, resp, wd); err != nil {
		err = withCause(actx, err)
		return &Failure{
			Classification: ClassifyError(err),
			Attempts:       attempt,
			Committed:      consumer.Committed(),
			Err:            err,
		}
	}
	return nil
}

func (e *Engine) backoff(ctx context.Context, log *zap.Logger, p Policy, attempt int, f *Failure) error {
	delay := p.Backoff(attempt, e.rand)
	// A backend-requested delay wins over the computed one, within the policy cap.
	if f.RetryAfter > delay {
		delay = min(f.RetryAfter, max(p.BackoffMax, delay))
	}
	if f.UpstreamStatus != 0 {
		log.Warn("upstream retry on HTTP status",
			zap.Int("attempt", attempt),
			zap.Int("status", f.UpstreamStatus),
			zap.String("code", string(f.Code)),
			zap.Duration("delay", delay),
			zap.Duration("retry_after", f.RetryAfter),
			zap.String("detail", logging.Truncate(f.Detail, logging.DefaultLogMaxLen)))
	} else {
		log.Warn("upstream retry on transport error",
			zap.Int("attempt", attempt),
			zap.String("code", string(f.Code)),
			zap.Duration("delay", delay),
			zap.Error(f.Err))
	}
	return e.sleep(ctx, delay)
}

// withCause attaches the attempt context's cancellation cause (a timer sentinel) to err.
func withCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}
