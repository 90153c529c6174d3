// Package labapi is a client for the optional central collector. Nodes
// report audit digests there; the collector aggregates evidence across
// the fleet. Everything here is best-effort, a node runs fine without it.
package labapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/petuhovskiy/rollodrome/internal/log"
	"github.com/petuhovskiy/rollodrome/internal/models"
)

type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL + "/api/v1",
		authHeader: fmt.Sprintf("Bearer %s", apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) ReportAudit(req *AuditReport) (*Prepared[AuditReportResponse], error) {
	return prepare[AuditReportResponse](c, "ReportAudit", "POST", "/audits", &AuditReportRequest{
		Audit: req,
	})
}

type Prepared[T any] struct {
	cli       *Client
	method    string
	fullURL   string
	body      json.RawMessage
	apiMethod string
}

func prepare[T any](cli *Client, apiMethod string, method string, path string, requestObj any) (*Prepared[T], error) {
	var body []byte
	if requestObj != nil {
		var err error
		body, err = json.Marshal(requestObj)
		if err != nil {
			return nil, err
		}
	}

	return &Prepared[T]{
		cli:       cli,
		method:    method,
		fullURL:   cli.baseURL + path,
		body:      body,
		apiMethod: apiMethod,
	}, nil
}

// Trial returns a trial row describing the request about to be sent.
// Run and node attribution is left to the saver.
func (p *Prepared[T]) Trial() *models.Trial {
	return &models.Trial{
		Kind:        models.TrialAPI,
		Engine:      "go-labapi",
		Method:      p.apiMethod,
		Request:     string(p.body),
		TrialResult: models.TrialResult{},
	}
}

func (p *Prepared[T]) Do(ctx context.Context) (*T, *models.TrialResult, error) {
	result := &models.TrialResult{
		IsFinished: true,
	}

	var responseObj T
	err := p.do(ctx, &responseObj, result)
	if err != nil {
		result.Error = err.Error()
		result.IsFailed = true
		return nil, result, err
	}

	return &responseObj, result, nil
}

func (p *Prepared[T]) do(ctx context.Context, responseObj any, result *models.TrialResult) error {
	ctx = log.With(
		ctx,
		zap.String("method", p.method),
		zap.String("url", p.fullURL),
	)

	log.Info(ctx, "sending request", zap.Any("request", p.body))

	var reader io.Reader
	if p.body != nil {
		reader = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.fullURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", p.cli.authHeader)
	req.Header.Set("Accept", "application/json")

	startedAt := time.Now()
	result.StartedAt = &startedAt

	resp, err := p.cli.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)
	result.FinishedAt = &finishedAt
	result.Duration = &duration
	result.Response = string(body)

	log.Info(
		ctx,
		"got response",
		zap.String("status", resp.Status),
		zap.Any("body", json.RawMessage(body)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("got status code %d, body = %s", resp.StatusCode, body)
	}

	err = json.Unmarshal(body, responseObj)
	if err != nil {
		return err
	}

	return nil
}
