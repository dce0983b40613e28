// Package analytics computes the branch performance view: per-branch
// aggregation over the raw records and the traffic-light classification.
// Everything here is recomputed from scratch on every pass and never
// persisted.
package analytics

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/finore/finore/internal/source"
	"github.com/finore/finore/pkg/models"
	"github.com/rs/zerolog/log"
)

// Feed field names, as they arrive from the sheet export.
const (
	FieldState     = "estado"
	FieldCity      = "ciud_suc"
	FieldAmount    = "MontoDispersion"
	FieldPromoter  = "Opero"
	FieldCreditDay = "fch_Credito"
)

// Placeholders for records with missing branch fields.
const (
	UnknownState    = "Sin Estado"
	UnknownCity     = "Sin Ciudad"
	UnknownPromoter = "Sin Promotor"
)

// Classification reasons, fixed per status.
const (
	ReasonGreen  = "Excellent performance: high compliance and above-average ticket"
	ReasonYellow = "Good performance: acceptable compliance and ticket in normal range"
	ReasonRed    = "Needs attention: low compliance or below-average ticket"
)

// ComplianceSource supplies the compliance ratio (0-100) for a branch. The
// real formula (targets vs. achieved) is still undefined upstream, so the
// value is injected rather than computed here.
type ComplianceSource interface {
	Compliance(state, city string) float64
}

// StaticCompliance returns the same configured value for every branch. It is
// a stand-in until the compliance formula is specified.
type StaticCompliance struct {
	Value float64
}

func (s StaticCompliance) Compliance(state, city string) float64 { return s.Value }

// Aggregator groups raw records by branch and accumulates counts and sums.
type Aggregator struct {
	Compliance ComplianceSource
}

func NewAggregator(compliance ComplianceSource) *Aggregator {
	return &Aggregator{Compliance: compliance}
}

// Aggregate builds one summary per (state, city) key, in first-encountered
// order. Missing branch fields fall back to placeholders; unparseable
// amounts count as zero. Each record also lands in the branch's credit list
// with its promoter and date, defaulted when the feed leaves them blank.
func (a *Aggregator) Aggregate(ds source.Dataset) []models.BranchSummary {
	index := make(map[string]int)
	var summaries []models.BranchSummary

	today := time.Now().Format("2006-01-02")
	for _, rec := range ds.Records {
		state := orDefault(rec[FieldState], UnknownState)
		city := orDefault(rec[FieldCity], UnknownCity)
		key := state + "-" + city

		i, ok := index[key]
		if !ok {
			i = len(summaries)
			index[key] = i
			summaries = append(summaries, models.BranchSummary{
				Name:  key,
				State: state,
				City:  city,
			})
		}

		amount := parseAmount(rec[FieldAmount])
		summaries[i].CreditCount++
		summaries[i].TotalDispersed += amount
		summaries[i].Credits = append(summaries[i].Credits, models.CreditDetail{
			Promoter: orDefault(rec[FieldPromoter], UnknownPromoter),
			Amount:   amount,
			Date:     orDefault(rec[FieldCreditDay], today),
		})
	}

	for i := range summaries {
		if summaries[i].CreditCount > 0 {
			summaries[i].TicketPromedio = summaries[i].TotalDispersed / float64(summaries[i].CreditCount)
		}
		summaries[i].ComplianceRatio = a.Compliance.Compliance(summaries[i].State, summaries[i].City)
	}
	return summaries
}

// Classify converts a branch summary and the global baseline into a tiered
// status. Rules are evaluated top-down; the first match wins.
func Classify(s models.BranchSummary, globalAverageTicket float64) models.ClassifiedBranch {
	var ticketRelative float64
	if globalAverageTicket != 0 {
		ticketRelative = s.TicketPromedio / globalAverageTicket
	}

	var status models.TrafficLightStatus
	var reason string
	switch {
	case s.ComplianceRatio >= 90 && ticketRelative >= 1.1:
		status = models.StatusGreen
		reason = ReasonGreen
	case s.ComplianceRatio >= 75 && ticketRelative >= 0.9:
		status = models.StatusYellow
		reason = ReasonYellow
	default:
		status = models.StatusRed
		reason = ReasonRed
	}

	return models.ClassifiedBranch{BranchSummary: s, Status: status, StatusReason: reason}
}

// Rates carries the dashboard figures that are configuration placeholders
// until their formulas are specified upstream.
type Rates struct {
	GlobalCompliance float64
	RestructureRate  float64
	DebtPurchaseRate float64
}

// Engine produces the full dashboard view from the current feed.
type Engine struct {
	Fetcher    source.Fetcher
	Aggregator *Aggregator
	Rates      Rates
}

func NewEngine(fetcher source.Fetcher, aggregator *Aggregator, rates Rates) *Engine {
	return &Engine{Fetcher: fetcher, Aggregator: aggregator, Rates: rates}
}

// Dashboard fetches the feed and derives the global summary plus the
// classified branch list. An unreachable feed degrades to an empty view.
func (e *Engine) Dashboard(ctx context.Context) models.DashboardData {
	ds, err := e.Fetcher.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("feed fetch failed, building empty dashboard")
		ds = source.Dataset{}
	}

	branches := e.Aggregator.Aggregate(ds)

	var totalCredits int
	var totalDispersed float64
	for _, b := range branches {
		totalCredits += b.CreditCount
		totalDispersed += b.TotalDispersed
	}
	var averageTicket float64
	if totalCredits > 0 {
		averageTicket = totalDispersed / float64(totalCredits)
	}

	summary := models.DashboardSummary{
		TotalCredits:     totalCredits,
		TotalDispersed:   totalDispersed,
		AverageTicket:    averageTicket,
		GlobalCompliance: e.Rates.GlobalCompliance,
		RestructureRate:  e.Rates.RestructureRate,
		DebtPurchaseRate: e.Rates.DebtPurchaseRate,
	}
	summary.TopBranch, summary.BottomBranch = leaderAndLaggard(branches)

	classified := make([]models.ClassifiedBranch, len(branches))
	for i, b := range branches {
		classified[i] = Classify(b, averageTicket)
	}

	return models.DashboardData{Summary: summary, Branches: classified}
}

// leaderAndLaggard picks the branches with the highest and lowest total
// dispersed amount. A stable sort keeps first-encountered order on ties.
func leaderAndLaggard(branches []models.BranchSummary) (top, bottom string) {
	if len(branches) == 0 {
		return "", ""
	}
	desc := make([]models.BranchSummary, len(branches))
	copy(desc, branches)
	sort.SliceStable(desc, func(i, j int) bool {
		return desc[i].TotalDispersed > desc[j].TotalDispersed
	})

	asc := make([]models.BranchSummary, len(branches))
	copy(asc, branches)
	sort.SliceStable(asc, func(i, j int) bool {
		return asc[i].TotalDispersed < asc[j].TotalDispersed
	})

	return desc[0].Name, asc[0].Name
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func parseAmount(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
