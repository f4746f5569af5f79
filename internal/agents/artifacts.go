// ABOUTME: Structured artifacts produced by each content stage
// ABOUTME: Each artifact validates the fields downstream stages rely on

package agents

import (
	"errors"
	"fmt"

	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/signals"
)

// Trends is the MemeHarvester artifact.
type Trends struct {
	TrendingPhrases []Phrase   `json:"trending_phrases"`
	MemePotential   []Meme     `json:"meme_potential"`
	CulturalMoments []string   `json:"cultural_moments"`
	Engagement      Engagement `json:"engagement_patterns"`
}

type Phrase struct {
	Phrase     string  `json:"phrase"`
	TrendScore float64 `json:"trend_score"`
	Context    string  `json:"context"`
}

type Meme struct {
	Concept       string  `json:"concept"`
	ViralityScore float64 `json:"virality_score"`
	Format        string  `json:"format"`
}

type Engagement struct {
	PeakTimes         string `json:"peak_times"`
	DemographicAppeal string `json:"demographic_appeal"`
}

// Top returns the highest scoring phrase, or "" when there is none.
func (t Trends) Top() string {
	best := -1
	for i, p := range t.TrendingPhrases {
		if best < 0 || p.TrendScore > t.TrendingPhrases[best].TrendScore {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return t.TrendingPhrases[best].Phrase
}

func (t Trends) validate() error {
	if len(t.TrendingPhrases) == 0 {
		return errors.New("no trending phrases")
	}
	for i, p := range t.TrendingPhrases {
		if p.Phrase == "" {
			return fmt.Errorf("trending phrase %d is empty", i)
		}
	}
	return nil
}

// Narrative is the NarrativeAligner artifact.
type Narrative struct {
	StoryHook         string    `json:"story_hook"`
	Framework         Framework `json:"narrative_framework"`
	EmotionalDrivers  []string  `json:"emotional_drivers"`
	AlignmentScore    float64   `json:"brand_alignment_score"`
	CulturalRelevance string    `json:"cultural_relevance"`
	HookVariations    []string  `json:"hook_variations"`
	// Analogies are earlier narratives found in the similarity index.
	Analogies []Analogy `json:"analogies,omitempty"`
}

type Framework struct {
	Hero           string `json:"hero"`
	Challenge      string `json:"challenge"`
	Transformation string `json:"transformation"`
	Outcome        string `json:"outcome"`
}

type Analogy struct {
	Key   string  `json:"key"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

func (n Narrative) validate() error {
	if n.StoryHook == "" {
		return errors.New("missing story hook")
	}
	return nil
}

// Copy is the CopyCrafter artifact.
type Copy struct {
	Headlines         []Headline `json:"headlines"`
	VideoScripts      []Script   `json:"video_scripts"`
	Variations        Variations `json:"copy_variations"`
	OptimizationNotes string     `json:"optimization_notes"`
}

type Headline struct {
	Text           string `json:"text"`
	TargetPlatform string `json:"target_platform"`
	AppealType     string `json:"appeal_type"`
}

type Script struct {
	Title        string `json:"title"`
	Script       string `json:"script"`
	Style        string `json:"style"`
	CallToAction string `json:"call_to_action"`
}

type Variations struct {
	ShortForm  string `json:"short_form"`
	MediumForm string `json:"medium_form"`
	LongForm   string `json:"long_form"`
}

func (c Copy) validate() error {
	if len(c.Headlines) == 0 {
		return errors.New("no headlines")
	}
	return nil
}

// Hooks is the HookOptimizer artifact.
type Hooks struct {
	RankedHooks  []RankedHook      `json:"ranked_hooks"`
	Factors      EngagementFactors `json:"engagement_factors"`
	ABTests      []string          `json:"a_b_test_recommendations"`
	Improvements []string          `json:"improvement_suggestions"`
}

type RankedHook struct {
	Headline     string             `json:"headline"`
	Shareability float64            `json:"shareability_score"`
	Engagement   float64            `json:"engagement_score"`
	Viral        float64            `json:"viral_potential"`
	Platforms    map[string]float64 `json:"platform_optimization,omitempty"`
	Reasons      []string           `json:"optimization_reasons"`
}

type EngagementFactors struct {
	EmotionalTriggers []string `json:"emotional_triggers"`
	CognitivePatterns []string `json:"cognitive_patterns"`
	SocialProof       []string `json:"social_proof_elements"`
}

func (h Hooks) validate() error {
	if len(h.RankedHooks) == 0 {
		return errors.New("no ranked hooks")
	}
	return nil
}

// Sequence is the SequencePlanner artifact.
type Sequence struct {
	Emails             []Email        `json:"email_sequence"`
	Strategy           Strategy       `json:"sequence_strategy"`
	AutomationTriggers []string       `json:"automation_triggers"`
	SuccessMetrics     SuccessMetrics `json:"success_metrics"`
}

type Email struct {
	Step            int      `json:"step"`
	Title           string   `json:"title"`
	Objective       string   `json:"objective"`
	ContentOutline  string   `json:"content_outline"`
	CallToAction    string   `json:"call_to_action"`
	Timing          string   `json:"timing"`
	Personalization []string `json:"personalization_elements"`
}

type Strategy struct {
	OverallArc       string   `json:"overall_arc"`
	EmotionalJourney []string `json:"emotional_journey"`
	ValueProgression string   `json:"value_progression"`
	ConversionPoints []string `json:"conversion_points"`
}

type SuccessMetrics struct {
	OpenRate   string `json:"open_rate_targets"`
	ClickRate  string `json:"click_rate_targets"`
	Conversion string `json:"conversion_targets"`
}

func (s Sequence) validate() error {
	if len(s.Emails) == 0 {
		return errors.New("empty email sequence")
	}
	return nil
}

// Insights is the AnalyticsInterpreter artifact. Scores and Sources are
// computed locally from the live data snapshot, never by a provider.
type Insights struct {
	Summary         Summary         `json:"performance_summary"`
	Tips            []Tip           `json:"improvement_tips"`
	Opportunities   Opportunities   `json:"optimization_opportunities"`
	Recommendations []string        `json:"next_campaign_recommendations"`
	Scores          *signals.Scores `json:"signal_scores,omitempty"`
	Sources         []string        `json:"signal_sources,omitempty"`
}

type Summary struct {
	OverallScore float64  `json:"overall_score"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Benchmark    string   `json:"benchmark_comparison"`
}

type Tip struct {
	Tip            string `json:"tip"`
	Priority       string `json:"priority"`
	ExpectedImpact string `json:"expected_impact"`
	Implementation string `json:"implementation"`
}

type Opportunities struct {
	Creative  string `json:"creative_optimization"`
	Targeting string `json:"targeting_optimization"`
	Budget    string `json:"budget_optimization"`
	Timing    string `json:"timing_optimization"`
}

func (i Insights) validate() error {
	if len(i.Tips) == 0 {
		return errors.New("no improvement tips")
	}
	return nil
}

type validator interface {
	validate() error
}

// checkArtifact reports a structurally incomplete reply as an invalid response.
func checkArtifact(v validator) error {
	if err := v.validate(); err != nil {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return nil
}
