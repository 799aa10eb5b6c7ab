// Package report publishes per-account run results: a rendered table on the
// console and, optionally, a summary line to a chat webhook.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

// Console renders each run result as a table on w.
type Console struct {
	w io.Writer
}

// NewConsole creates a console reporter writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Report(_ context.Context, result model.RunResult) error {
	t := table.NewWriter()
	t.SetOutputMirror(c.w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run %s", result.RunID)
	t.AppendHeader(table.Row{"Account", "Final", "Desktop", "Mobile", "Total"})
	t.AppendRow(table.Row{
		result.Email,
		result.FinalPoints,
		fmt.Sprintf("%+d", result.DesktopGain),
		fmt.Sprintf("%+d", result.MobileGain),
		fmt.Sprintf("%+d", result.TotalGain),
	})
	t.Render()
	return nil
}

// Webhook posts a one-line summary per result to a chat webhook.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook reporter.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *Webhook) Report(ctx context.Context, result model.RunResult) error {
	payload, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("%s: %d points (desktop %+d, mobile %+d, total %+d)",
			result.Email, result.FinalPoints, result.DesktopGain, result.MobileGain, result.TotalGain),
	})
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("report rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Multi forwards each result to every reporter and joins their errors.
type Multi []driven.Reporter

func (m Multi) Report(ctx context.Context, result model.RunResult) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
