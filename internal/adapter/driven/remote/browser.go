// Package remote implements the browser ports against the local automation
// sidecar's HTTP API. The sidecar owns the real browser engine; this adapter
// only holds handles (session, page, element IDs) and relays commands.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// DefaultBaseURL is where the sidecar listens when started locally.
const DefaultBaseURL = "http://127.0.0.1:9377"

// Config points the adapter at a sidecar instance.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Factory implements driven.BrowserFactory over the sidecar API.
type Factory struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewFactory creates a Factory. A nil HTTPClient gets a client without a
// global timeout; command deadlines come from the per-call contexts.
func NewFactory(cfg Config, logger *slog.Logger) *Factory {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Factory{
		baseURL: strings.TrimSuffix(base, "/"),
		client:  client,
		logger:  logger,
	}
}

type sessionRequest struct {
	Email     string             `json:"email"`
	Mode      string             `json:"mode"`
	UserAgent string             `json:"userAgent,omitempty"`
	Proxy     model.AccountProxy `json:"proxy,omitzero"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	PageID    string `json:"pageId"`
}

// NewSession opens an isolated browsing context for the account in the given
// mode. The sidecar applies the proxy and user agent at context creation.
func (f *Factory) NewSession(ctx context.Context, account model.Account, mode model.SessionMode) (driven.Session, error) {
	ua := account.UserAgents.Desktop
	if mode == model.ModeMobile {
		ua = account.UserAgents.Mobile
	}
	var resp sessionResponse
	err := f.do(ctx, http.MethodPost, "/sessions", sessionRequest{
		Email:     account.Email,
		Mode:      string(mode),
		UserAgent: ua,
		Proxy:     account.Proxy,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("open %s session: %w", mode, err)
	}
	f.logger.Debug("session opened", "session_id", resp.SessionID, "mode", string(mode))
	return &session{
		f:    f,
		id:   resp.SessionID,
		main: &page{f: f, id: resp.PageID},
	}, nil
}

type session struct {
	f    *Factory
	id   string
	main *page
}

func (s *session) Page() driven.Page { return s.main }

func (s *session) NewPage(ctx context.Context) (driven.Page, error) {
	var resp struct {
		PageID string `json:"pageId"`
	}
	if err := s.f.do(ctx, http.MethodPost, "/sessions/"+s.id+"/pages", nil, &resp); err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &page{f: s.f, id: resp.PageID}, nil
}

func (s *session) Close(ctx context.Context) error {
	if err := s.f.do(ctx, http.MethodDelete, "/sessions/"+s.id, nil, nil); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

type page struct {
	f  *Factory
	id string

	// lastURL backs CurrentURL when the sidecar is briefly unreachable.
	lastURL string
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := p.f.do(ctx, http.MethodPost, "/pages/"+p.id+"/navigate", map[string]any{
		"url":       url,
		"timeoutMs": timeout.Milliseconds(),
	}, nil)
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	p.lastURL = url
	return nil
}

func (p *page) WaitFor(ctx context.Context, selector string, timeout time.Duration) (driven.Element, error) {
	var resp struct {
		Found     bool   `json:"found"`
		ElementID string `json:"elementId"`
	}
	err := p.f.do(ctx, http.MethodPost, "/pages/"+p.id+"/waitFor", map[string]any{
		"selector":  selector,
		"timeoutMs": timeout.Milliseconds(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("wait for %q: %w", selector, err)
	}
	if !resp.Found {
		return nil, nil
	}
	return &element{f: p.f, id: resp.ElementID}, nil
}

func (p *page) Fill(ctx context.Context, selector, text string) error {
	err := p.f.do(ctx, http.MethodPost, "/pages/"+p.id+"/fill", map[string]string{
		"selector": selector,
		"text":     text,
	}, nil)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (p *page) Click(ctx context.Context, selector string) error {
	err := p.f.do(ctx, http.MethodPost, "/pages/"+p.id+"/click", map[string]string{
		"selector": selector,
	}, nil)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *page) CurrentURL() string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp struct {
		URL string `json:"url"`
	}
	if err := p.f.do(ctx, http.MethodGet, "/pages/"+p.id+"/url", nil, &resp); err != nil {
		return p.lastURL
	}
	p.lastURL = resp.URL
	return resp.URL
}

func (p *page) Evaluate(ctx context.Context, script string) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	err := p.f.do(ctx, http.MethodPost, "/pages/"+p.id+"/evaluate", map[string]string{
		"script": script,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return resp.Result, nil
}

type element struct {
	f  *Factory
	id string
}

func (e *element) Click(ctx context.Context) error {
	if err := e.f.do(ctx, http.MethodPost, "/elements/"+e.id+"/click", nil, nil); err != nil {
		return fmt.Errorf("click element: %w", err)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := e.f.do(ctx, http.MethodGet, "/elements/"+e.id+"/text", nil, &resp); err != nil {
		return "", fmt.Errorf("read element text: %w", err)
	}
	return resp.Text, nil
}

// do issues one sidecar command. 404 and 410 mean the handle is gone, which
// the core treats as a dead surface.
func (f *Factory) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%s %s: %w", method, path, driven.ErrSurfaceClosed)
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
