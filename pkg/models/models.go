package models

import "time"

// Chunk is the persisted unit of indexed content: a bounded span of
// serialized record text paired with its embedding.
type Chunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
}

// ChunkMetadata identifies where a chunk came from and which dataset
// revision produced it.
type ChunkMetadata struct {
	Source    string    `json:"source"`
	RowIndex  int       `json:"row_index"`
	SheetRef  string    `json:"sheet_reference"`
	DataHash  string    `json:"data_hash"`
	IndexedAt time.Time `json:"indexed_at"`
}

// SearchResult pairs a chunk with its cosine similarity to the query vector.
type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// CreditDetail is one dispersed credit inside a branch: who placed it,
// when, and for how much.
type CreditDetail struct {
	Promoter string  `json:"promoter"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"`
}

// BranchSummary holds the per-branch accumulators computed on each
// analytics pass. Branches are identified by (State, City).
type BranchSummary struct {
	Name            string         `json:"name"`
	State           string         `json:"state"`
	City            string         `json:"city"`
	CreditCount     int            `json:"total_credits"`
	TotalDispersed  float64        `json:"total_dispersed"`
	TicketPromedio  float64        `json:"average_ticket"`
	ComplianceRatio float64        `json:"compliance"`
	Credits         []CreditDetail `json:"credits"`
}

// TrafficLightStatus is the three-tier branch performance status.
type TrafficLightStatus string

const (
	StatusGreen  TrafficLightStatus = "green"
	StatusYellow TrafficLightStatus = "yellow"
	StatusRed    TrafficLightStatus = "red"
)

// ClassifiedBranch is a BranchSummary with its traffic-light status attached.
type ClassifiedBranch struct {
	BranchSummary
	Status       TrafficLightStatus `json:"status"`
	StatusReason string             `json:"status_reason"`
}

// DashboardSummary aggregates the whole dataset for the presentation layer.
type DashboardSummary struct {
	TotalCredits     int     `json:"total_credits"`
	TotalDispersed   float64 `json:"total_dispersed"`
	AverageTicket    float64 `json:"average_ticket"`
	GlobalCompliance float64 `json:"global_compliance"`
	TopBranch        string  `json:"top_branch,omitempty"`
	BottomBranch     string  `json:"bottom_branch,omitempty"`
	RestructureRate  float64 `json:"restructure_rate"`
	DebtPurchaseRate float64 `json:"debt_purchase_rate"`
}

// DashboardData is the full analytics response: global summary plus the
// classified branch list in first-encountered order.
type DashboardData struct {
	Summary  DashboardSummary   `json:"summary"`
	Branches []ClassifiedBranch `json:"branches"`
}
