package labapi

import (
	"context"
	"os"
	"testing"

	"github.com/petuhovskiy/rollodrome/internal/log"
)

func testClient(t *testing.T) *Client {
	baseURL := os.Getenv("LAB_BASE_URL")
	apiKey := os.Getenv("LAB_API_KEY")
	if baseURL == "" || apiKey == "" {
		t.Skip("LAB_BASE_URL or LAB_API_KEY is not set")
	}
	return NewClient(baseURL, apiKey)
}

// Run with `export $(cat .env | xargs) && go test ./... -v -run TestReportAudit`
func TestReportAudit(t *testing.T) {
	_ = log.DefaultGlobals()
	ctx := context.Background()

	client := testClient(t)
	prep, err := client.ReportAudit(&AuditReport{
		Node:     "test-node",
		RunID:    1,
		Pool:     "coin",
		Seed:     42,
		Trials:   2,
		Draws:    200,
		Expected: map[string]float64{"heads": 0.5, "tails": 0.5},
		Observed: map[string]float64{"heads": 0.49, "tails": 0.51},
		MaxDrift: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, result, err := prep.Do(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Audit.Accepted {
		t.Fatalf("expected audit to be accepted, got %#+v", resp.Audit)
	}

	t.Logf("Audit ID: %s", resp.Audit.ID)
	t.Logf("Result: %#+v", result)
}
