package models

// DQReport is the parsed monthly data-quality report for one delivering
// entity. The shape follows the report files produced by the upstream DQ
// tooling; sections may be sparsely populated.
type DQReport struct {
	Metadata       ReportMetadata        `json:"metadata"`
	Overview       OverviewSection       `json:"overview"`
	Writeoffs      WriteoffSection       `json:"writeoffs"`
	Errors         ErrorSection          `json:"errors"`
	Warnings       WarningSection        `json:"warnings"`
	AdditionalInfo AdditionalInfoSection `json:"additional_info"`
	RiskAnalysis   *RiskAnalysis         `json:"risk_analysis,omitempty"`
}

type ReportMetadata struct {
	ReportingDate        string `json:"reporting_date"`
	DeliveringEntityCode string `json:"delivering_entity_code"`
	DeliveringEntityName string `json:"delivering_entity_name"`
	Country              string `json:"country"`
	GeneratedAt          string `json:"generated_at"`
}

type PortfolioData struct {
	Type               string  `json:"type"`
	Criteria           string  `json:"criteria"`
	Currency           string  `json:"currency"`
	NoOfContracts      int     `json:"no_of_contracts"`
	WeightedIRRNominal float64 `json:"weighted_irr_nominal"`
	NBVLocalCMS        float64 `json:"nbv_local_cms"`
	GrossExposure      float64 `json:"gross_exposure"`
	NetBookValue       float64 `json:"net_book_value"`
	DelinquentAmount   float64 `json:"delinquent_amount"`
	Downpayment        float64 `json:"downpayment"`
}

type OverviewSummary struct {
	TotalContracts        int     `json:"total_contracts"`
	TotalDelinquentAmount float64 `json:"total_delinquent_amount"`
	DelinquencyRate       float64 `json:"delinquency_rate"`
}

type IssueIdentified struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"` // low, medium, high, critical
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

type OverviewSection struct {
	Portfolios       []PortfolioData   `json:"portfolios"`
	Summary          OverviewSummary   `json:"summary"`
	IssuesIdentified []IssueIdentified `json:"issues_identified"`
}

type WriteoffData struct {
	Type                  string  `json:"type"`
	Criteria              string  `json:"criteria"`
	Currency              string  `json:"currency"`
	NumberOfContracts     int     `json:"number_of_contracts"`
	NetLossAmount         float64 `json:"net_loss_amount"`
	RemarketingNetProceed float64 `json:"remarketing_net_proceed"`
	WriteoffRecovery      float64 `json:"writeoff_recovery_amount"`
	NetRVLossAmount       float64 `json:"net_rv_loss_amount"`
}

type WriteoffSummary struct {
	TotalNetLoss     float64 `json:"total_net_loss"`
	NewWriteoffCount int     `json:"new_writeoffs_count"`
}

type WriteoffFlags struct {
	HasNewWriteoffs bool `json:"has_new_writeoffs"`
	SignificantLoss bool `json:"significant_loss"`
}

type WriteoffSection struct {
	Writeoffs []WriteoffData  `json:"writeoffs"`
	Summary   WriteoffSummary `json:"summary"`
	Flags     WriteoffFlags   `json:"flags"`
}

type ErrorData struct {
	Description   string  `json:"description"`
	Currency      string  `json:"currency"`
	ContractCount int     `json:"contract_count"`
	NetBookValue  float64 `json:"net_book_value"`
}

type ErrorSummary struct {
	TotalErrorContracts  int `json:"total_error_contracts"`
	NegativeAmountIssues int `json:"negative_amount_issues"`
}

type ErrorSection struct {
	Errors  []ErrorData  `json:"errors"`
	Summary ErrorSummary `json:"summary"`
}

type WarningData struct {
	Description       string  `json:"description"`
	Currency          string  `json:"currency"`
	Contracts         int     `json:"contracts"`
	NetbookValueLocal float64 `json:"netbook_value_local"`
}

type WarningSummary struct {
	TotalWarningContracts  int `json:"total_warning_contracts"`
	RuleConfirmationIssues int `json:"rule_confirmation_issues"`
}

type WarningSection struct {
	Warnings []WarningData  `json:"warnings"`
	Summary  WarningSummary `json:"summary"`
}

type AdditionalInfoSummary struct {
	TotalChanges           int `json:"total_changes"`
	HighImpactChangesCount int `json:"high_impact_changes_count"`
	ContractRelatedChanges int `json:"contract_related_changes"`
}

type AdditionalInfoCategories struct {
	HighImpact      map[string]int `json:"high_impact"`
	ContractRelated map[string]int `json:"contract_related"`
}

type AdditionalInfoSection struct {
	Changes    map[string]int            `json:"changes"`
	Summary    AdditionalInfoSummary     `json:"summary"`
	Categories *AdditionalInfoCategories `json:"categories,omitempty"`
}

type ThresholdBreach struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

type RiskAnalysis struct {
	RiskScore          float64           `json:"risk_score"`
	RiskLevel          string            `json:"risk_level"`
	PriorityAreas      []string          `json:"priority_areas"`
	KeyInsights        []string          `json:"key_insights,omitempty"`
	Patterns           []string          `json:"patterns_identified,omitempty"`
	Recommendations    []string          `json:"recommendations,omitempty"`
	RequiresAttention  bool              `json:"requires_attention"`
	ThresholdsBreached []ThresholdBreach `json:"thresholds_breached,omitempty"`
}
