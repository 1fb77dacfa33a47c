package aggregate

import (
	"math"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapcheck/internal/registry"
	"github.com/leapstack-labs/leapcheck/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cell statuses.
const (
	StatusOK         = "ok"
	StatusFail       = "fail"
	StatusNotApplied = "not-applied"
)

// Cell is the outcome of one formal rule on one dataset.
type Cell struct {
	Dataset string `json:"dataset"`
	RuleID  string `json:"rule_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
}

// TableCoverage counts registered datasets that produced results.
type TableCoverage struct {
	ValidatedTables int     `json:"validated_tables"`
	TotalTables     int     `json:"total_tables"`
	Percentage      float64 `json:"percentage"`
}

// RuleCoverage counts registered rule ids that produced results.
type RuleCoverage struct {
	AppliedRules int     `json:"applied_rules"`
	TotalRules   int     `json:"total_rules"`
	Percentage   float64 `json:"percentage"`
}

// ValidationResults summarizes pass/fail over all applications.
type ValidationResults struct {
	TotalApplications int `json:"total_applications"`
	Successful        int `json:"successful"`
	Failed            int `json:"failed"`
	// SuccessRate is a fraction in [0, 1].
	SuccessRate float64 `json:"success_rate"`
}

// RuleApplications counts the results of one rule id.
type RuleApplications struct {
	RuleID       string `json:"rule_id"`
	Applications int    `json:"applications"`
}

// Statistics is recomputed on every aggregation.
type Statistics struct {
	TableCoverage        TableCoverage      `json:"table_coverage"`
	RuleCoverage         RuleCoverage       `json:"rule_coverage"`
	ValidationResults    ValidationResults  `json:"validation_results"`
	RuleApplicationStats []RuleApplications `json:"rule_application_stats"`
}

// Coverage is the content of coverage.json.
type Coverage struct {
	Datasets     []string            `json:"datasets"`
	RulesFormal  []string            `json:"rules_formal"`
	Cells        []Cell              `json:"cells"`
	CustomChecks map[string][]string `json:"custom_checks"`
	Statistics   Statistics          `json:"coverage_statistics"`
}

// BuildCoverage computes the coverage matrix and statistics. Denominators
// come from the registry; a result whose rule or dataset is no longer
// registered still appears in the matrix but never inflates the counts.
func BuildCoverage(reg *registry.Registry, collected *Collected) *Coverage {
	items := collected.Items

	registeredTables := toSet(reg.AllTables())
	registeredIDs := toSet(reg.AllRuleIDs())
	formal := reg.RuleIDsByKind(core.KindFormal)
	formalSet := toSet(formal)
	customSet := toSet(reg.RuleIDsByKind(core.KindCustom))

	datasetSet := toSet(collected.Datasets)
	for t := range registeredTables {
		datasetSet[t] = struct{}{}
	}
	datasets := sortedKeys(datasetSet)

	status := make(map[[2]string]string)
	custom := make(map[string]map[string]struct{})
	appliedTables := make(map[string]struct{})
	appliedIDs := make(map[string]struct{})
	applications := make(map[string]int)
	var stats ValidationResults

	for _, it := range items {
		stats.TotalApplications++
		if it.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		applications[it.RuleID]++

		if _, ok := registeredTables[it.Dataset]; ok {
			appliedTables[it.Dataset] = struct{}{}
		}
		if _, ok := registeredIDs[it.RuleID]; ok {
			appliedIDs[it.RuleID] = struct{}{}
		}

		if it.Dataset == "" {
			continue
		}
		if _, ok := formalSet[it.RuleID]; ok {
			key := [2]string{it.Dataset, it.RuleID}
			// failure dominates
			if status[key] != StatusFail {
				if it.Success {
					status[key] = StatusOK
				} else {
					status[key] = StatusFail
				}
			}
		}
		if _, ok := customSet[it.RuleID]; ok {
			if custom[it.Dataset] == nil {
				custom[it.Dataset] = make(map[string]struct{})
			}
			custom[it.Dataset][it.RuleID] = struct{}{}
		}
	}
	if stats.TotalApplications > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.TotalApplications)
	}

	cells := make([]Cell, 0, len(datasets)*len(formal))
	for _, ds := range datasets {
		for _, rid := range formal {
			st, ok := status[[2]string{ds, rid}]
			if !ok {
				st = StatusNotApplied
			}
			cells = append(cells, Cell{Dataset: ds, RuleID: rid, Status: st, Title: cellTitle(rid, st)})
		}
	}

	customChecks := make(map[string][]string, len(custom))
	for ds, names := range custom {
		customChecks[ds] = sortedKeys(names)
	}

	ruleStats := make([]RuleApplications, 0, len(applications))
	for _, rid := range sortedKeys(applications) {
		ruleStats = append(ruleStats, RuleApplications{RuleID: rid, Applications: applications[rid]})
	}

	return &Coverage{
		Datasets:     datasets,
		RulesFormal:  formal,
		Cells:        cells,
		CustomChecks: customChecks,
		Statistics: Statistics{
			TableCoverage: TableCoverage{
				ValidatedTables: len(appliedTables),
				TotalTables:     len(registeredTables),
				Percentage:      percentage(len(appliedTables), len(registeredTables)),
			},
			RuleCoverage: RuleCoverage{
				AppliedRules: len(appliedIDs),
				TotalRules:   len(registeredIDs),
				Percentage:   percentage(len(appliedIDs), len(registeredIDs)),
			},
			ValidationResults:    stats,
			RuleApplicationStats: ruleStats,
		},
	}
}

var titleCaser = cases.Title(language.English)

// cellTitle renders e.g. "Not Null: ok" for rule id NOT_NULL.
func cellTitle(ruleID, status string) string {
	words := strings.ReplaceAll(strings.ToLower(ruleID), "_", " ")
	return titleCaser.String(words) + ": " + status
}

// percentage is rounded to one decimal place.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func toSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// FailedItems returns the failed results in collected order.
func FailedItems(collected *Collected) []core.RuleResult {
	return slices.DeleteFunc(slices.Clone(collected.Items), func(r core.RuleResult) bool { return r.Success })
}
