// ABOUTME: Trend signal scoring from the categories present in a snapshot
// ABOUTME: Each category contributes a capped count score to weighted composite indicators

package signals

import "math"

// Scores are 0-10 indicators derived from the usable entries of a snapshot.
type Scores struct {
	InnovationDepth  float64 `json:"innovation_depth"`
	MarketValidation float64 `json:"market_validation"`
	SocialMomentum   float64 `json:"social_momentum"`
	TechAdoption     float64 `json:"tech_adoption"`
	MarketReadiness  float64 `json:"market_readiness"`
	ResearchActivity float64 `json:"research_activity"`
	Overall          float64 `json:"overall"`
}

// per-item multipliers for each recognised category
var categoryWeight = map[string]float64{
	"github":     1.5,
	"patents":    3,
	"research":   2,
	"products":   2,
	"hackernews": 1.5,
	"job_market": 2,
	"social":     1.5,
	"news":       1.5,
	"datasets":   2,
}

// Score computes trend indicators from snapshot item counts.
func Score(s Snapshot) Scores {
	counts := make(map[string]int)
	for _, e := range s.Usable() {
		counts[e.Category] += len(e.Items)
	}
	c := func(category string) float64 {
		return math.Min(float64(counts[category])*categoryWeight[category], 10)
	}

	var sc Scores
	sc.InnovationDepth = c("patents")*0.4 + c("research")*0.4 + c("github")*0.2
	sc.MarketValidation = c("job_market")*0.4 + c("products")*0.3 + c("hackernews")*0.3
	sc.SocialMomentum = c("social")*0.4 + c("news")*0.4 + c("datasets")*0.2
	sc.TechAdoption = sc.InnovationDepth*0.6 + sc.MarketValidation*0.4
	sc.MarketReadiness = sc.MarketValidation*0.7 + sc.SocialMomentum*0.3
	sc.ResearchActivity = c("research")*0.6 + c("patents")*0.4
	sc.Overall = sc.InnovationDepth*0.25 +
		sc.MarketValidation*0.25 +
		sc.SocialMomentum*0.2 +
		sc.TechAdoption*0.15 +
		sc.MarketReadiness*0.1 +
		sc.ResearchActivity*0.05

	round := func(f float64) float64 { return math.Round(f*100) / 100 }
	sc.InnovationDepth = round(sc.InnovationDepth)
	sc.MarketValidation = round(sc.MarketValidation)
	sc.SocialMomentum = round(sc.SocialMomentum)
	sc.TechAdoption = round(sc.TechAdoption)
	sc.MarketReadiness = round(sc.MarketReadiness)
	sc.ResearchActivity = round(sc.ResearchActivity)
	sc.Overall = round(sc.Overall)
	return sc
}
