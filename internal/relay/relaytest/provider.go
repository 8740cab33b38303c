// Package relaytest provides a scripted in-memory relay.Provider for tests.
package relaytest

import (
	"context"
	"fmt"
	"sync"

	"virtufit-backend/internal/relay"
)

// Provider replays scripted poll reports. Once the script is exhausted the last
// report repeats.
type Provider struct {
	ProviderName string
	Table        *relay.StatusTable
	APIKey       string

	mu         sync.Mutex
	taskID     string
	submitErrs []error
	reports    []Report
	next       int
	submits    int
	polls      int
}

// Report is one scripted Poll outcome.
type Report struct {
	Task *relay.ProviderTask
	Err  error
}

var table = relay.MustStatusTable("fake", map[string]relay.Status{
	"queued":    relay.StatusQueued,
	"running":   relay.StatusRunning,
	"done":      relay.StatusSucceeded,
	"failed":    relay.StatusFailed,
	"cancelled": relay.StatusCancelled,
	"expired":   relay.StatusExpired,
	"unknown":   relay.StatusUnknown,
}, []string{"queued", "running", "done", "failed", "cancelled", "expired", "unknown"})

// NewProvider returns a provider with credentials set whose Submit returns taskID.
func NewProvider(taskID string) *Provider {
	return &Provider{
		ProviderName: "fake",
		Table:        table,
		APIKey:       "test-key",
		taskID:       taskID,
	}
}

// Status scripts a report with the given raw status.
func Status(raw string) Report {
	return Report{Task: &relay.ProviderTask{RawStatus: raw}}
}

// Done scripts a success report carrying resultURL.
func Done(resultURL string) Report {
	return Report{Task: &relay.ProviderTask{RawStatus: "done", ResultURL: resultURL, Progress: 100}}
}

// Fail scripts a poll error.
func Fail(err error) Report {
	return Report{Err: err}
}

// Script appends poll reports.
func (p *Provider) Script(reports ...Report) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, reports...)
	return p
}

// FailSubmit makes the next Submit calls return errs in order.
func (p *Provider) FailSubmit(errs ...error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitErrs = append(p.submitErrs, errs...)
	return p
}

func (p *Provider) Name() string { return p.ProviderName }

func (p *Provider) StatusTable() *relay.StatusTable { return p.Table }

func (p *Provider) CheckCredentials() error {
	if p.APIKey == "" {
		return relay.NewConfigurationError(p.ProviderName, fmt.Sprintf("%s API key is not configured", p.ProviderName))
	}
	return nil
}

func (p *Provider) Submit(ctx context.Context, _ relay.Image, _ relay.SubmitOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	if len(p.submitErrs) > 0 {
		err := p.submitErrs[0]
		p.submitErrs = p.submitErrs[1:]
		return "", err
	}
	return p.taskID, nil
}

func (p *Provider) Poll(ctx context.Context, taskID string) (*relay.ProviderTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if len(p.reports) == 0 {
		return &relay.ProviderTask{ID: taskID, RawStatus: "queued"}, nil
	}
	r := p.reports[p.next]
	if p.next < len(p.reports)-1 {
		p.next++
	}
	if r.Err != nil {
		return nil, r.Err
	}
	task := *r.Task
	task.ID = taskID
	return &task, nil
}

// ParseCallback treats the body as a raw status string.
func (p *Provider) ParseCallback(body []byte) (*relay.ProviderTask, error) {
	return &relay.ProviderTask{ID: p.taskID, RawStatus: string(body)}, nil
}

func (p *Provider) Submits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

func (p *Provider) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}
