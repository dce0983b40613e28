package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/finore/finore/internal/source"
	"github.com/finore/finore/pkg/models"
)

// MockFetcher implements the source.Fetcher interface for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context) (source.Dataset, error)
}

func (m *MockFetcher) Fetch(ctx context.Context) (source.Dataset, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	return source.Dataset{}, nil
}

func record(state, city, amount string) source.Record {
	return source.Record{
		FieldState:  state,
		FieldCity:   city,
		FieldAmount: amount,
	}
}

func dataset(records ...source.Record) source.Dataset {
	return source.Dataset{
		Headers: []string{FieldState, FieldCity, FieldAmount, FieldPromoter, FieldCreditDay},
		Records: records,
	}
}

func TestAggregateGroupsByBranch(t *testing.T) {
	agg := NewAggregator(StaticCompliance{Value: 85})

	got := agg.Aggregate(dataset(
		record("Jalisco", "Guadalajara", "1000"),
		record("Nuevo León", "Monterrey", "500.50"),
		record("Jalisco", "Guadalajara", "3000"),
	))

	if len(got) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(got))
	}

	gdl := got[0]
	if gdl.Name != "Jalisco-Guadalajara" || gdl.State != "Jalisco" || gdl.City != "Guadalajara" {
		t.Errorf("unexpected branch identity: %+v", gdl)
	}
	if gdl.CreditCount != 2 {
		t.Errorf("expected 2 credits, got %d", gdl.CreditCount)
	}
	if gdl.TotalDispersed != 4000 {
		t.Errorf("expected total 4000, got %v", gdl.TotalDispersed)
	}
	if gdl.TicketPromedio != 2000 {
		t.Errorf("expected average ticket 2000, got %v", gdl.TicketPromedio)
	}
	if gdl.ComplianceRatio != 85 {
		t.Errorf("expected injected compliance 85, got %v", gdl.ComplianceRatio)
	}

	if got[1].Name != "Nuevo León-Monterrey" {
		t.Errorf("branches must keep first-encountered order, got %q second", got[1].Name)
	}
}

func TestAggregateMissingFieldsUsePlaceholders(t *testing.T) {
	agg := NewAggregator(StaticCompliance{Value: 85})

	got := agg.Aggregate(dataset(
		record("", "", "100"),
		record("  ", "Guadalajara", "no-es-numero"),
	))

	if len(got) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(got))
	}
	if got[0].Name != UnknownState+"-"+UnknownCity {
		t.Errorf("expected placeholder branch, got %q", got[0].Name)
	}
	if got[1].State != UnknownState || got[1].City != "Guadalajara" {
		t.Errorf("blank state must fall back to placeholder, got %+v", got[1])
	}
	// unparseable amount counts as zero, the credit still counts
	if got[1].CreditCount != 1 || got[1].TotalDispersed != 0 {
		t.Errorf("expected 1 credit with zero amount, got %+v", got[1])
	}
}

func TestAggregateCarriesCreditDetail(t *testing.T) {
	agg := NewAggregator(StaticCompliance{Value: 85})

	got := agg.Aggregate(dataset(
		source.Record{
			FieldState:     "Jalisco",
			FieldCity:      "Guadalajara",
			FieldAmount:    "1500.25",
			FieldPromoter:  "Juan Perez",
			FieldCreditDay: "2024-03-01",
		},
		record("Jalisco", "Guadalajara", "800"),
	))

	if len(got) != 1 {
		t.Fatalf("expected 1 branch, got %d", len(got))
	}
	credits := got[0].Credits
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(credits))
	}

	if credits[0].Promoter != "Juan Perez" || credits[0].Date != "2024-03-01" || credits[0].Amount != 1500.25 {
		t.Errorf("unexpected first credit: %+v", credits[0])
	}
	// record without promoter/date gets the placeholders
	if credits[1].Promoter != UnknownPromoter {
		t.Errorf("expected promoter placeholder, got %q", credits[1].Promoter)
	}
	if credits[1].Date == "" {
		t.Error("missing credit date should default to the current date")
	}
	if credits[1].Amount != 800 {
		t.Errorf("expected amount 800, got %v", credits[1].Amount)
	}
}

func TestAggregateEmptyDataset(t *testing.T) {
	agg := NewAggregator(StaticCompliance{Value: 85})
	if got := agg.Aggregate(source.Dataset{}); len(got) != 0 {
		t.Errorf("expected no branches, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		compliance float64
		ticket     float64
		global     float64
		want       models.TrafficLightStatus
		wantReason string
	}{
		{name: "green", compliance: 92, ticket: 1200, global: 1000, want: models.StatusGreen, wantReason: ReasonGreen},
		{name: "green boundary", compliance: 90, ticket: 1100, global: 1000, want: models.StatusGreen, wantReason: ReasonGreen},
		{name: "yellow high compliance low ticket", compliance: 95, ticket: 950, global: 1000, want: models.StatusYellow, wantReason: ReasonYellow},
		{name: "yellow boundary", compliance: 75, ticket: 900, global: 1000, want: models.StatusYellow, wantReason: ReasonYellow},
		{name: "red low compliance", compliance: 60, ticket: 2000, global: 1000, want: models.StatusRed, wantReason: ReasonRed},
		{name: "red low ticket", compliance: 80, ticket: 500, global: 1000, want: models.StatusRed, wantReason: ReasonRed},
		{name: "zero global baseline", compliance: 95, ticket: 2000, global: 0, want: models.StatusRed, wantReason: ReasonRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.BranchSummary{TicketPromedio: tt.ticket, ComplianceRatio: tt.compliance}
			got := Classify(s, tt.global)
			if got.Status != tt.want {
				t.Errorf("expected status %q, got %q", tt.want, got.Status)
			}
			if got.StatusReason != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, got.StatusReason)
			}
		})
	}
}

func testEngine(fetcher source.Fetcher) *Engine {
	return NewEngine(fetcher, NewAggregator(StaticCompliance{Value: 85}), Rates{
		GlobalCompliance: 85,
		RestructureRate:  15,
		DebtPurchaseRate: 8,
	})
}

func TestDashboardSummary(t *testing.T) {
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context) (source.Dataset, error) {
			return dataset(
				record("Jalisco", "Guadalajara", "3000"),
				record("Jalisco", "Guadalajara", "1000"),
				record("Nuevo León", "Monterrey", "500"),
				record("CDMX", "Benito Juárez", "6500"),
			), nil
		},
	}

	data := testEngine(fetcher).Dashboard(context.Background())

	if data.Summary.TotalCredits != 4 {
		t.Errorf("expected 4 credits, got %d", data.Summary.TotalCredits)
	}
	if data.Summary.TotalDispersed != 11000 {
		t.Errorf("expected total 11000, got %v", data.Summary.TotalDispersed)
	}
	if data.Summary.AverageTicket != 2750 {
		t.Errorf("expected average ticket 2750, got %v", data.Summary.AverageTicket)
	}
	if data.Summary.TopBranch != "CDMX-Benito Juárez" {
		t.Errorf("expected top branch CDMX-Benito Juárez, got %q", data.Summary.TopBranch)
	}
	if data.Summary.BottomBranch != "Nuevo León-Monterrey" {
		t.Errorf("expected bottom branch Nuevo León-Monterrey, got %q", data.Summary.BottomBranch)
	}
	if data.Summary.GlobalCompliance != 85 || data.Summary.RestructureRate != 15 || data.Summary.DebtPurchaseRate != 8 {
		t.Errorf("configured rates must pass through, got %+v", data.Summary)
	}
	if len(data.Branches) != 3 {
		t.Errorf("expected 3 classified branches, got %d", len(data.Branches))
	}
	for _, b := range data.Branches {
		if b.Status == "" || b.StatusReason == "" {
			t.Errorf("branch %q missing classification: %+v", b.Name, b)
		}
	}
}

func TestDashboardTieBreaksKeepFirstEncountered(t *testing.T) {
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context) (source.Dataset, error) {
			return dataset(
				record("A", "Uno", "1000"),
				record("B", "Dos", "1000"),
				record("C", "Tres", "1000"),
			), nil
		},
	}

	data := testEngine(fetcher).Dashboard(context.Background())

	if data.Summary.TopBranch != "A-Uno" {
		t.Errorf("tied leader must be the first encountered, got %q", data.Summary.TopBranch)
	}
	if data.Summary.BottomBranch != "A-Uno" {
		t.Errorf("tied laggard must be the first encountered, got %q", data.Summary.BottomBranch)
	}
}

func TestDashboardFetchFailureDegradesToEmpty(t *testing.T) {
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context) (source.Dataset, error) {
			return source.Dataset{}, errors.New("sheet unreachable")
		},
	}

	data := testEngine(fetcher).Dashboard(context.Background())

	if data.Summary.TotalCredits != 0 || data.Summary.TotalDispersed != 0 || data.Summary.AverageTicket != 0 {
		t.Errorf("expected zeroed summary, got %+v", data.Summary)
	}
	if data.Summary.TopBranch != "" || data.Summary.BottomBranch != "" {
		t.Errorf("expected empty leader/laggard, got %+v", data.Summary)
	}
	if len(data.Branches) != 0 {
		t.Errorf("expected no branches, got %d", len(data.Branches))
	}
}
