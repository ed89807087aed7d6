// -----------------------------------------------------------------------
// Campaign simulator - replays dataset rows as timed campaign observations
// -----------------------------------------------------------------------

package agent

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// revenuePerConversion is the assumed value of one conversion when computing ROI
const revenuePerConversion = 50.0

// simulationStart is the timestamp of the first observation; each row advances one hour
var simulationStart = time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC)

// Observation is one time step of campaign performance data
type Observation struct {
	Date                string   `json:"date"`
	CampaignID          string   `json:"campaign_id"`
	AdSpend             float64  `json:"ad_spend"`
	ClickThroughRate    float64  `json:"click_through_rate"`
	ConversionRate      float64  `json:"conversion_rate"`
	WebsiteVisits       int      `json:"website_visits"`
	PagesPerVisit       float64  `json:"pages_per_visit"`
	TimeOnSite          float64  `json:"time_on_site"`
	SocialShares        int      `json:"social_shares"`
	EmailOpens          int      `json:"email_opens"`
	EmailClicks         int      `json:"email_clicks"`
	Conversions         int      `json:"conversions"`
	CampaignChannel     string   `json:"campaign_channel"`
	CampaignType        string   `json:"campaign_type"`
	AdvertisingPlatform string   `json:"advertising_platform"`
	CustomerAge         int      `json:"customer_age"`
	CustomerGender      string   `json:"customer_gender"`
	CustomerIncome      int      `json:"customer_income"`
	PreviousPurchases   int      `json:"previous_purchases"`
	LoyaltyPoints       int      `json:"loyalty_points"`
	CostPerClick        float64  `json:"cost_per_click"`
	CostPerConversion   *float64 `json:"cost_per_conversion"`
	ROI                 float64  `json:"roi"`
}

// CampaignSummary reports totals over the observations consumed so far
type CampaignSummary struct {
	TotalBudget      float64  `json:"total_budget"`
	SpentBudget      *float64 `json:"spent_budget,omitempty"`
	TotalConversions *int     `json:"total_conversions,omitempty"`
	TotalClicks      *int     `json:"total_clicks,omitempty"`
	TotalSteps       int      `json:"total_steps"`
	CurrentStep      int      `json:"current_step"`
	Status           string   `json:"status"`
}

// Summary statuses
const (
	SummaryReady    = "READY"
	SummaryRunning  = "RUNNING"
	SummaryComplete = "COMPLETE"
)

// datasetRow is one raw row of the marketing dataset
type datasetRow struct {
	CustomerID          string
	Age                 float64
	Gender              string
	Income              float64
	CampaignChannel     string
	CampaignType        string
	AdSpend             float64
	ClickThroughRate    float64
	ConversionRate      float64
	WebsiteVisits       float64
	PagesPerVisit       float64
	TimeOnSite          float64
	SocialShares        float64
	EmailOpens          float64
	EmailClicks         float64
	PreviousPurchases   float64
	LoyaltyPoints       float64
	AdvertisingPlatform string
	Conversion          float64
}

// demoRows stand in for the dataset when none is configured
var demoRows = []datasetRow{
	{CustomerID: "8000", Age: 56, Gender: "Female", Income: 136912, CampaignChannel: "Social Media", CampaignType: "Awareness",
		AdSpend: 6497.870068, ClickThroughRate: 0.043919, ConversionRate: 0.088031, WebsiteVisits: 0, PagesPerVisit: 2.399017,
		TimeOnSite: 7.396803, SocialShares: 19, EmailOpens: 6, EmailClicks: 9, PreviousPurchases: 4, LoyaltyPoints: 688,
		AdvertisingPlatform: "IsConfid", Conversion: 1},
	{CustomerID: "8001", Age: 69, Gender: "Male", Income: 41760, CampaignChannel: "Email", CampaignType: "Retention",
		AdSpend: 3898.668606, ClickThroughRate: 0.155725, ConversionRate: 0.182725, WebsiteVisits: 42, PagesPerVisit: 2.917138,
		TimeOnSite: 5.352549, SocialShares: 5, EmailOpens: 2, EmailClicks: 7, PreviousPurchases: 2, LoyaltyPoints: 3459,
		AdvertisingPlatform: "IsConfid", Conversion: 1},
	{CustomerID: "8002", Age: 46, Gender: "Female", Income: 88456, CampaignChannel: "PPC", CampaignType: "Awareness",
		AdSpend: 1546.429596, ClickThroughRate: 0.277490, ConversionRate: 0.076423, WebsiteVisits: 2, PagesPerVisit: 8.223619,
		TimeOnSite: 13.794901, SocialShares: 0, EmailOpens: 11, EmailClicks: 2, PreviousPurchases: 8, LoyaltyPoints: 2337,
		AdvertisingPlatform: "IsConfid", Conversion: 1},
}

// Simulator steps through a fixed list of observations. It is not safe for concurrent use.
type Simulator struct {
	observations []Observation
	current      int
}

// NewSimulator creates a simulator positioned before the first observation
func NewSimulator(observations []Observation) *Simulator {
	return &Simulator{observations: observations}
}

// DemoObservations returns up to limit observations built from the built-in rows
func DemoObservations(limit int) []Observation {
	rows := demoRows
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return buildObservations(rows)
}

// LoadObservations reads the first limit rows of a CSV dataset
func LoadObservations(path string, limit int) ([]Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	rows, err := readDataset(file, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return buildObservations(rows), nil
}

func readDataset(r io.Reader, limit int) ([]datasetRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("missing header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	required := []string{
		"CustomerID", "Age", "Gender", "Income", "CampaignChannel", "CampaignType", "AdSpend",
		"ClickThroughRate", "ConversionRate", "WebsiteVisits", "PagesPerVisit", "TimeOnSite",
		"SocialShares", "EmailOpens", "EmailClicks", "PreviousPurchases", "LoyaltyPoints",
		"AdvertisingPlatform", "Conversion",
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []datasetRow
	for line := 2; limit <= 0 || len(rows) < limit; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		p := rowParser{record: record, columns: columns}
		row := datasetRow{
			CustomerID:          p.str("CustomerID"),
			Age:                 p.num("Age"),
			Gender:              p.str("Gender"),
			Income:              p.num("Income"),
			CampaignChannel:     p.str("CampaignChannel"),
			CampaignType:        p.str("CampaignType"),
			AdSpend:             p.num("AdSpend"),
			ClickThroughRate:    p.num("ClickThroughRate"),
			ConversionRate:      p.num("ConversionRate"),
			WebsiteVisits:       p.num("WebsiteVisits"),
			PagesPerVisit:       p.num("PagesPerVisit"),
			TimeOnSite:          p.num("TimeOnSite"),
			SocialShares:        p.num("SocialShares"),
			EmailOpens:          p.num("EmailOpens"),
			EmailClicks:         p.num("EmailClicks"),
			PreviousPurchases:   p.num("PreviousPurchases"),
			LoyaltyPoints:       p.num("LoyaltyPoints"),
			AdvertisingPlatform: p.str("AdvertisingPlatform"),
			Conversion:          p.num("Conversion"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rowParser reads named columns and keeps the first parse error
type rowParser struct {
	record  []string
	columns map[string]int
	err     error
}

func (p *rowParser) str(name string) string {
	idx := p.columns[name]
	if idx >= len(p.record) {
		return ""
	}
	return strings.TrimSpace(p.record[idx])
}

func (p *rowParser) num(name string) float64 {
	raw := p.str(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: invalid number %q", name, raw)
	}
	return v
}

func buildObservations(rows []datasetRow) []Observation {
	observations := make([]Observation, 0, len(rows))
	for idx, row := range rows {
		obs := Observation{
			Date:                simulationStart.Add(time.Duration(idx) * time.Hour).Format("2006-01-02 15:04:05"),
			CampaignID:          "CAMP_" + row.CustomerID,
			AdSpend:             round(row.AdSpend, 2),
			ClickThroughRate:    round(row.ClickThroughRate, 4),
			ConversionRate:      round(row.ConversionRate, 4),
			WebsiteVisits:       int(row.WebsiteVisits),
			PagesPerVisit:       round(row.PagesPerVisit, 2),
			TimeOnSite:          round(row.TimeOnSite, 2),
			SocialShares:        int(row.SocialShares),
			EmailOpens:          int(row.EmailOpens),
			EmailClicks:         int(row.EmailClicks),
			Conversions:         int(row.Conversion),
			CampaignChannel:     row.CampaignChannel,
			CampaignType:        row.CampaignType,
			AdvertisingPlatform: row.AdvertisingPlatform,
			CustomerAge:         int(row.Age),
			CustomerGender:      row.Gender,
			CustomerIncome:      int(row.Income),
			PreviousPurchases:   int(row.PreviousPurchases),
			LoyaltyPoints:       int(row.LoyaltyPoints),
		}

		obs.CostPerClick = round(obs.AdSpend/float64(max(obs.WebsiteVisits, 1)), 2)
		if obs.Conversions > 0 {
			cpc := round(obs.AdSpend/float64(obs.Conversions), 2)
			obs.CostPerConversion = &cpc
		}
		if obs.AdSpend != 0 {
			obs.ROI = round((float64(obs.Conversions)*revenuePerConversion-obs.AdSpend)/obs.AdSpend*100, 2)
		}

		observations = append(observations, obs)
	}
	return observations
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Next returns the next observation and advances, or false when the campaign is over
func (s *Simulator) Next() (Observation, bool) {
	if s.current >= len(s.observations) {
		return Observation{}, false
	}
	obs := s.observations[s.current]
	s.current++
	return obs, true
}

// TotalSteps returns the number of observations in the campaign
func (s *Simulator) TotalSteps() int {
	return len(s.observations)
}

// Reset rewinds to the first observation
func (s *Simulator) Reset() {
	s.current = 0
}

// Summary reports the campaign totals at the current step
func (s *Simulator) Summary() CampaignSummary {
	var totalBudget float64
	for _, obs := range s.observations {
		totalBudget += obs.AdSpend
	}

	summary := CampaignSummary{
		TotalBudget: round(totalBudget, 2),
		TotalSteps:  len(s.observations),
		CurrentStep: s.current,
		Status:      SummaryReady,
	}
	if s.current == 0 {
		return summary
	}

	var spent float64
	var conversions, clicks int
	for _, obs := range s.observations[:s.current] {
		spent += obs.AdSpend
		conversions += obs.Conversions
		clicks += obs.WebsiteVisits
	}
	spent = round(spent, 2)
	summary.SpentBudget = &spent
	summary.TotalConversions = &conversions
	summary.TotalClicks = &clicks
	summary.Status = SummaryRunning
	if s.current >= len(s.observations) {
		summary.Status = SummaryComplete
	}
	return summary
}
