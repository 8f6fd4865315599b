package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pysugar/aoai-nexus/internal/auth/token"
	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/dialect"
	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/reliability"
	"github.com/pysugar/aoai-nexus/internal/routing"
	"github.com/pysugar/aoai-nexus/internal/shim"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"github.com/pysugar/aoai-nexus/internal/stream"
	"github.com/pysugar/aoai-nexus/internal/upstream"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// maxRequestBody allows inline base64 images.
const maxRequestBody = 32 << 20

// Proxy wires routing, translation and the reliability engine for one inbound call.
type Proxy struct {
	store  *config.Store
	router *routing.Router
	tokens token.Provider
	engine *reliability.Engine
	sink   stats.Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewProxy(store *config.Store, router *routing.Router, tokens token.Provider, engine *reliability.Engine, sink stats.Sink, logger *zap.Logger) *Proxy {
	if sink == nil {
		sink = stats.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		store:  store,
		router: router,
		tokens: tokens,
		engine: engine,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// call is the per-request state, fixed once the target is resolved.
type call struct {
	w         http.ResponseWriter
	r         *http.Request
	requestID string
	modelID   string
	streaming bool
	target    *routing.Target
	log       *zap.Logger
}

// Handler serves POST requests for routeKey.
func (p *Proxy) Handler(routeKey routing.RouteKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.FromContext(ctx, p.logger).With(zap.String("route", string(routeKey)))

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body: "+err.Error())
			return
		}
		body, err := SanitizeBody(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}

		cfg := p.store.Current()
		modelID := gjson.GetBytes(body, "model").String()
		if modelID == "" {
			modelID, _ = routing.DefaultModel(cfg)
		}

		target, err := p.router.Resolve(cfg, routeKey, modelID)
		if err != nil {
			var rerr *routing.Error
			if errors.As(err, &rerr) {
				log.Warn("route resolution failed", zap.String("model", modelID), zap.String("code", rerr.Code), zap.String("detail", rerr.Message))
				writeError(w, r, rerr.Status, rerr.Code, rerr.Message)
				return
			}
			writeError(w, r, http.StatusInternalServerError, routing.CodeInvalidUpstreamConfig, err.Error())
			return
		}

		c := &call{
			w:         w,
			r:         r,
			requestID: logging.GetRequestID(ctx),
			modelID:   modelID,
			streaming: gjson.GetBytes(body, "stream").Bool(),
			target:    target,
		}
		c.log = log.With(
			zap.String("model", modelID),
			zap.String("direction", target.Direction.String()),
			zap.Bool("stream", c.streaming))

		upstreamBody, err := buildUpstreamBody(target, body)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}

		p.sink.RecordRequest(modelID)

		bearer, err := p.tokens.Token(ctx, cfg.Auth.Scope)
		if err != nil {
			p.fail(c, &reliability.Failure{Classification: reliability.TokenFailure(err), Err: err}, nil)
			return
		}

		req := reliability.Request{
			Method: http.MethodPost,
			URL:    target.URL,
			Header: upstream.ForwardHeaders(r.Header, bearer),
			Body:   upstreamBody,
		}
		policy := reliability.PolicyFromConfig(cfg.Server.Upstream)
		c.log.Debug("dispatching upstream call", zap.String("url", target.URL), zap.Int("attempts", policy.Attempts()))

		if c.streaming {
			p.stream(c, policy, req)
			return
		}
		p.unary(c, policy, req)
	}
}

// buildUpstreamBody converts the sanitized body to the backend dialect and names the deployment.
func buildUpstreamBody(target *routing.Target, body []byte) ([]byte, error) {
	switch target.Direction {
	case routing.DirectionChatToResponses:
		var in dialect.ChatRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		out, err := shim.ChatToResponses(&in, target.Deployment)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	case routing.DirectionResponsesToChat:
		var in dialect.ResponsesRequest
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		out, err := shim.ResponsesToChat(&in, target.Deployment)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	default:
		return sjson.SetBytes(body, "model", target.Deployment)
	}
}

func (p *Proxy) unary(c *call, policy reliability.Policy, req reliability.Request) {
	res, err := p.engine.Do(c.r.Context(), policy, req)
	if err != nil {
		p.fail(c, err, nil)
		return
	}

	switch c.target.Direction {
	case routing.DirectionChatToResponses:
		var payload dialect.ResponsesResponse
		if err := json.Unmarshal(res.Body, &payload); err == nil {
			stats.RecordUsageJSON(p.sink, c.modelID, payload.Usage)
			writeJSON(c.w, http.StatusOK, shim.ResponsesToChatCompletion(&payload, c.modelID, p.now()))
			return
		}
	case routing.DirectionResponsesToChat:
		var payload dialect.ChatCompletion
		if err := json.Unmarshal(res.Body, &payload); err == nil {
			stats.RecordUsageJSON(p.sink, c.modelID, payload.Usage)
			writeJSON(c.w, http.StatusOK, shim.ChatCompletionToResponses(&payload, c.modelID))
			return
		}
	}

	if c.target.Direction != routing.DirectionNone {
		c.log.Warn("upstream body is not in the expected dialect, relaying as is",
			zap.String("body", logging.TruncateBytes(res.Body)))
	}
	if usage, ok := stats.UsageFromPayload(res.Body); ok {
		stats.RecordUsageJSON(p.sink, c.modelID, usage)
	}
	dst := c.w.Header()
	for k, v := range upstream.ResponseHeaders(res.Header) {
		dst[k] = v
	}
	c.w.WriteHeader(res.Status)
	_, _ = c.w.Write(res.Body)
}

func (p *Proxy) stream(c *call, policy reliability.Policy, req reliability.Request) {
	out := stream.NewWriter(c.w)

	var consumer reliability.Consumer
	switch c.target.Direction {
	case routing.DirectionChatToResponses:
		consumer = stream.NewChatFromResponses(out, p.sink, c.modelID, c.log, p.now())
	case routing.DirectionResponsesToChat:
		consumer = stream.NewResponsesFromChat(out, p.sink, c.modelID, c.log)
	default:
		consumer = stream.NewPassthrough(out, p.sink, c.modelID, c.log)
	}

	attempts, err := p.engine.Stream(c.r.Context(), policy, req, consumer)
	if err != nil {
		p.fail(c, err, out)
		return
	}
	out.Close()
	c.log.Debug("stream finished", zap.Int("attempts", attempts))
}

// fail reports err to the caller: as an HTTP error while nothing has been sent, or as
// an in-band frame on a committed stream. A departed caller gets nothing.
func (p *Proxy) fail(c *call, err error, out *stream.Writer) {
	if c.r.Context().Err() != nil || errors.Is(err, context.Canceled) {
		c.log.Info("client disconnected", zap.Error(err))
		return
	}

	var failure *reliability.Failure
	if !errors.As(err, &failure) {
		failure = &reliability.Failure{Classification: reliability.ClassifyError(err), Err: err}
	}
	p.sink.RecordError(c.modelID)
	c.log.Error("upstream call failed",
		zap.String("code", string(failure.Code)),
		zap.Int("status", failure.Status),
		zap.Int("upstream_status", failure.UpstreamStatus),
		zap.Int("attempts", failure.Attempts),
		zap.Bool("committed", failure.Committed),
		zap.String("detail", logging.Truncate(failure.Detail, logging.DefaultLogMaxLen)))

	body := failure.Body(c.requestID, failure.UpstreamStatus)
	if out != nil && out.Committed() {
		if werr := out.WriteError(body); werr != nil {
			c.log.Info("failed to write in-band error", zap.Error(werr))
		}
		return
	}
	writeJSON(c.w, failure.Status, body)
}
