// nexus-probe sends one small request per configured model through the full proxy
// stack (routing, translation, token, retries) and prints the outcome. Useful for
// checking a config file against real backends before deploying it.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pysugar/aoai-nexus/internal/auth/token"
	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/proxy/handlers"
	"github.com/pysugar/aoai-nexus/internal/proxy/middleware"
	"github.com/pysugar/aoai-nexus/internal/reliability"
	"github.com/pysugar/aoai-nexus/internal/routing"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	only := flag.String("model", "", "probe only this model id")
	route := flag.String("route", string(routing.RouteChatCompletions), "client route key: chat/completions or responses")
	prompt := flag.String("prompt", "Reply with the single word: pong", "prompt text")
	stream := flag.Bool("stream", false, "request a streamed response")
	flag.Parse()

	logger, err := logging.New(envOr("NEXUS_LOG_LEVEL", "warn"), "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	path, err := config.ResolvePath(*configPath)
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		fatal(err)
	}

	counters := stats.NewCounters()
	proxy := handlers.NewProxy(
		config.NewStore(path, cfg, logger),
		routing.NewRouter(),
		tokens,
		reliability.NewEngine(&http.Client{}, logger),
		counters,
		logger,
	)
	routeKey := routing.RouteKey(*route)
	h := middleware.RequestID(proxy.Handler(routeKey))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tSTATUS\tLATENCY\tRESULT")
	failed := 0
	for _, m := range cfg.Models {
		if *only != "" && m.ID != *only {
			continue
		}
		body, err := probeBody(routeKey, m.ID, *prompt, *stream)
		if err != nil {
			fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/"+string(routeKey), strings.NewReader(string(body)))
		rec := httptest.NewRecorder()

		start := time.Now()
		h.ServeHTTP(rec, req)
		elapsed := time.Since(start).Round(time.Millisecond)

		if rec.Code >= 300 {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.ID, rec.Code, elapsed, summarize(rec.Body.String()))
	}
	_ = tw.Flush()

	totals := counters.Snapshot().Totals
	fmt.Printf("\n%d request(s), %d error(s), %d token(s)\n", totals.Requests, totals.Errors, totals.TotalTokens)
	if failed > 0 {
		os.Exit(2)
	}
}

func probeBody(routeKey routing.RouteKey, model, prompt string, stream bool) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("model", model)
	if routeKey == routing.RouteResponses {
		set("input", prompt)
		set("max_output_tokens", 16)
	} else {
		set("messages.0.role", "user")
		set("messages.0.content", prompt)
		set("max_tokens", 16)
	}
	if stream {
		set("stream", true)
	}
	return body, err
}

// summarize picks the most useful one-line view of a response body.
func summarize(body string) string {
	for _, path := range []string{"choices.0.message.content", "output_text", "detail", "code"} {
		if v := gjson.Get(body, path); v.Exists() && v.String() != "" {
			return logging.Truncate(strings.Join(strings.Fields(v.String()), " "), 80)
		}
	}
	if strings.Contains(body, "data: ") {
		return fmt.Sprintf("stream, %d bytes", len(body))
	}
	return logging.Truncate(strings.TrimSpace(body), 80)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "nexus-probe: %v\n", err)
	os.Exit(1)
}
