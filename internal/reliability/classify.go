package reliability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Code is the closed set of failure classifications.
type Code string

const (
	CodeConnectTimeout   Code = "UPSTREAM_CONNECT_TIMEOUT"
	CodeRequestTimeout   Code = "UPSTREAM_REQUEST_TIMEOUT"
	CodeFirstByteTimeout Code = "UPSTREAM_FIRST_BYTE_TIMEOUT"
	CodeIdleTimeout      Code = "UPSTREAM_IDLE_TIMEOUT"
	CodeDNSError         Code = "UPSTREAM_DNS_ERROR"
	CodeNetworkError     Code = "UPSTREAM_NETWORK_ERROR"
	CodeTLSError         Code = "UPSTREAM_TLS_ERROR"
	CodeRateLimit        Code = "UPSTREAM_RATE_LIMIT"
	CodeHTTP5xx          Code = "UPSTREAM_HTTP_5XX"
	CodeHTTP4xx          Code = "UPSTREAM_HTTP_4XX"
	CodeTokenAcquisition Code = "TOKEN_ACQUISITION_FAILED"
	CodeStreamInterrupt  Code = "STREAM_INTERRUPTED"
	CodeFetchFailed      Code = "UPSTREAM_FETCH_FAILED"
)

// Timer causes. They reach the transport as context.Cause of the attempt context.
var (
	ErrConnectTimeout   = errors.New("upstream connect timeout")
	ErrRequestTimeout   = errors.New("upstream request timeout")
	ErrFirstByteTimeout = errors.New("upstream first byte timeout")
	ErrIdleTimeout      = errors.New("upstream idle timeout")
)

// Classification is the {code, retryable, status, detail} outcome of one failure.
type Classification struct {
	Code      Code
	Retryable bool
	Status    int
	Detail    string
}

// ClassifyStatus maps a non-success backend status. Retryability is membership in the
// policy's retry set.
func ClassifyStatus(p Policy, status int, detail string) Classification {
	c := Classification{Status: status, Retryable: p.RetryableStatus(status), Detail: detail}
	switch {
	case status == http.StatusTooManyRequests:
		c.Code = CodeRateLimit
	case status >= 500:
		c.Code = CodeHTTP5xx
	default:
		c.Code = CodeHTTP4xx
	}
	return c
}

// ClassifyError maps a transport or timer error.
func ClassifyError(err error) Classification {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	timeout := func(code Code) Classification {
		return Classification{Code: code, Retryable: true, Status: http.StatusGatewayTimeout, Detail: detail}
	}
	badGateway := func(code Code, retryable bool) Classification {
		return Classification{Code: code, Retryable: retryable, Status: http.StatusBadGateway, Detail: detail}
	}

	switch {
	case errors.Is(err, ErrConnectTimeout):
		return timeout(CodeConnectTimeout)
	case errors.Is(err, ErrFirstByteTimeout):
		return timeout(CodeFirstByteTimeout)
	case errors.Is(err, ErrIdleTimeout):
		return timeout(CodeIdleTimeout)
	case errors.Is(err, ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return timeout(CodeRequestTimeout)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return badGateway(CodeDNSError, true)
	}
	if isTLSError(err) {
		return badGateway(CodeTLSError, false)
	}

	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &opErr):
		return badGateway(CodeNetworkError, true)
	}
	return badGateway(CodeFetchFailed, true)
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

// TokenFailure classifies a bearer token that could not be obtained.
func TokenFailure(err error) Classification {
	return Classification{
		Code:   CodeTokenAcquisition,
		Status: http.StatusBadGateway,
		Detail: err.Error(),
	}
}

// Interrupted turns a failure seen after the first caller-visible byte into a terminal one.
func Interrupted(c Classification) Classification {
	detail := string(c.Code)
	if c.Detail != "" {
		detail += ": " + c.Detail
	}
	return Classification{Code: CodeStreamInterrupt, Status: c.Status, Detail: detail}
}

// Failure is what the engine returns when the retry budget did not produce a response.
type Failure struct {
	Classification
	// UpstreamStatus is the backend status when the failure was an HTTP response.
	UpstreamStatus int
	// RetryAfter is the delay the backend asked for, if any.
	RetryAfter time.Duration
	Attempts   int
	// Committed is true when bytes had already reached the caller.
	Committed bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s after %d attempt(s): %v", f.Code, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s): status %d", f.Code, f.Attempts, f.UpstreamStatus)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
