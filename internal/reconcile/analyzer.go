package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

// Analyzer compares the orders held in the local fallback cache with the
// remote store. It only reports; offline writes are never replayed.
type Analyzer struct {
	logger *logrus.Logger
}

type Report struct {
	TotalLocal     int        `json:"total_local"`
	TotalRemote    int        `json:"total_remote"`
	Matches        int        `json:"matches"`
	LocalOnly      []string   `json:"local_only"`
	RemoteOnly     []string   `json:"remote_only"`
	Mismatches     []Mismatch `json:"mismatches"`
	SyncPercentage float64    `json:"sync_percentage"`
	OverallStatus  string     `json:"overall_status"`
	Timestamp      time.Time  `json:"timestamp"`
}

type Mismatch struct {
	OrderID     string      `json:"order_id"`
	Field       string      `json:"field"`
	LocalValue  interface{} `json:"local_value"`
	RemoteValue interface{} `json:"remote_value"`
}

func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Diverged reports whether any order exists on one side only or differs.
func (r *Report) Diverged() bool {
	return len(r.LocalOnly) > 0 || len(r.RemoteOnly) > 0 || len(r.Mismatches) > 0
}

func (a *Analyzer) Compare(local, remote []models.Order) *Report {
	report := &Report{
		TotalLocal:  len(local),
		TotalRemote: len(remote),
		LocalOnly:   []string{},
		RemoteOnly:  []string{},
		Mismatches:  []Mismatch{},
		Timestamp:   time.Now(),
	}

	localMap := make(map[string]*models.Order, len(local))
	remoteMap := make(map[string]*models.Order, len(remote))
	for i := range local {
		localMap[local[i].ID] = &local[i]
	}
	for i := range remote {
		remoteMap[remote[i].ID] = &remote[i]
	}

	allIDs := make(map[string]bool, len(localMap)+len(remoteMap))
	for id := range localMap {
		allIDs[id] = true
	}
	for id := range remoteMap {
		allIDs[id] = true
	}

	ids := make([]string, 0, len(allIDs))
	for id := range allIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		l, inLocal := localMap[id]
		r, inRemote := remoteMap[id]

		switch {
		case !inRemote:
			report.LocalOnly = append(report.LocalOnly, id)
		case !inLocal:
			report.RemoteOnly = append(report.RemoteOnly, id)
		default:
			mismatches := compareFields(l, r)
			if len(mismatches) == 0 {
				report.Matches++
			}
			report.Mismatches = append(report.Mismatches, mismatches...)
		}
	}

	if len(ids) > 0 {
		report.SyncPercentage = float64(report.Matches) / float64(len(ids)) * 100
	} else {
		report.SyncPercentage = 100
	}

	switch {
	case report.SyncPercentage >= 95:
		report.OverallStatus = "in_sync"
	case report.SyncPercentage >= 70:
		report.OverallStatus = "drifting"
	default:
		report.OverallStatus = "diverged"
	}

	a.logger.WithFields(logrus.Fields{
		"local":       len(local),
		"remote":      len(remote),
		"local_only":  len(report.LocalOnly),
		"remote_only": len(report.RemoteOnly),
		"mismatches":  len(report.Mismatches),
	}).Info("Local cache comparison completed")

	return report
}

func compareFields(l, r *models.Order) []Mismatch {
	var mismatches []Mismatch

	if l.Status != r.Status {
		mismatches = append(mismatches, Mismatch{OrderID: l.ID, Field: "status", LocalValue: l.Status, RemoteValue: r.Status})
	}
	if !l.TotalAmount.Equal(r.TotalAmount) {
		mismatches = append(mismatches, Mismatch{OrderID: l.ID, Field: "totalAmount", LocalValue: l.TotalAmount, RemoteValue: r.TotalAmount})
	}
	if len(l.Items) != len(r.Items) {
		mismatches = append(mismatches, Mismatch{OrderID: l.ID, Field: "items", LocalValue: len(l.Items), RemoteValue: len(r.Items)})
	}
	if l.AssignedRunnerID != r.AssignedRunnerID {
		mismatches = append(mismatches, Mismatch{OrderID: l.ID, Field: "assignedObId", LocalValue: l.AssignedRunnerID, RemoteValue: r.AssignedRunnerID})
	}

	return mismatches
}

func (a *Analyzer) Render(report *Report, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(report, "", "  ")
	case "summary":
		return renderSummary(report), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func renderSummary(report *Report) []byte {
	return []byte(fmt.Sprintf(`LOCAL CACHE DIVERGENCE
======================
Generated: %s

Local orders:  %d
Remote orders: %d
Matching:      %d
Local only:    %d
Remote only:   %d
Mismatches:    %d
Sync:          %.2f%%

STATUS: %s
`,
		report.Timestamp.Format(time.RFC3339),
		report.TotalLocal,
		report.TotalRemote,
		report.Matches,
		len(report.LocalOnly),
		len(report.RemoteOnly),
		len(report.Mismatches),
		report.SyncPercentage,
		strings.ToUpper(report.OverallStatus)))
}
