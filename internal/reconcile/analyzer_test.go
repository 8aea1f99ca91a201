package reconcile

import (
	"strings"
	"testing"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testAnalyzer() *Analyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewAnalyzer(logger)
}

func TestCompare(t *testing.T) {
	local := []models.Order{
		{ID: "a", Status: models.StatusSubmitted, TotalAmount: decimal.NewFromInt(100)},
		{ID: "b", Status: models.StatusPaid, TotalAmount: decimal.NewFromInt(200)},
		{ID: "offline-1", Status: models.StatusSubmitted},
	}
	remote := []models.Order{
		{ID: "a", Status: models.StatusSubmitted, TotalAmount: decimal.NewFromInt(100)},
		{ID: "b", Status: models.StatusDelivered, TotalAmount: decimal.NewFromInt(200)},
		{ID: "c", Status: models.StatusSubmitted},
	}

	report := testAnalyzer().Compare(local, remote)

	if report.Matches != 1 {
		t.Errorf("Expected 1 match, got %d", report.Matches)
	}
	if len(report.LocalOnly) != 1 || report.LocalOnly[0] != "offline-1" {
		t.Errorf("Unexpected local only: %v", report.LocalOnly)
	}
	if len(report.RemoteOnly) != 1 || report.RemoteOnly[0] != "c" {
		t.Errorf("Unexpected remote only: %v", report.RemoteOnly)
	}
	if len(report.Mismatches) != 1 || report.Mismatches[0].Field != "status" {
		t.Errorf("Unexpected mismatches: %+v", report.Mismatches)
	}
	if !report.Diverged() {
		t.Error("Expected report to be diverged")
	}
	if report.OverallStatus != "diverged" {
		t.Errorf("Expected diverged status, got %s", report.OverallStatus)
	}
}

func TestCompareEmpty(t *testing.T) {
	report := testAnalyzer().Compare(nil, nil)
	if report.Diverged() || report.SyncPercentage != 100 || report.OverallStatus != "in_sync" {
		t.Errorf("Expected empty comparison to be in sync, got %+v", report)
	}
}

func TestRender(t *testing.T) {
	a := testAnalyzer()
	report := a.Compare([]models.Order{{ID: "x"}}, nil)

	summary, err := a.Render(report, "summary")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(string(summary), "Local only:    1") {
		t.Errorf("Unexpected summary:\n%s", summary)
	}

	if _, err := a.Render(report, "xml"); err == nil {
		t.Error("Expected unsupported format error")
	}
}
