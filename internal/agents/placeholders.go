// ABOUTME: Locally defined fallback artifacts used when a stage cannot get a valid reply
// ABOUTME: Placeholders never call a provider and only read the request and declared inputs

package agents

import (
	"fmt"

	"github.com/2389/adbrain/internal/signals"
	"github.com/2389/adbrain/internal/workflow"
)

func trendsPlaceholder(in workflow.Input) any {
	return Trends{
		TrendingPhrases: []Phrase{
			{Phrase: in.Request.Topic, TrendScore: 8.0, Context: "Requested campaign topic"},
			{Phrase: "AI revolution", TrendScore: 9.2, Context: "Technology transformation"},
			{Phrase: "sustainable innovation", TrendScore: 8.7, Context: "Environmental consciousness"},
			{Phrase: "authentic connection", TrendScore: 8.1, Context: "Human relationships"},
			{Phrase: "future-ready", TrendScore: 7.9, Context: "Preparation mindset"},
		},
		MemePotential: []Meme{
			{Concept: "Before vs after", ViralityScore: 9.1, Format: "comparison meme"},
			{Concept: "Everyday life hacks", ViralityScore: 8.5, Format: "educational video"},
		},
		CulturalMoments: []string{"AI breakthrough", "sustainability shift", "remote work evolution"},
		Engagement: Engagement{
			PeakTimes:         "evenings and weekends",
			DemographicAppeal: "25-45 tech-aware professionals",
		},
	}
}

func narrativePlaceholder(in workflow.Input) any {
	return Narrative{
		StoryHook: fmt.Sprintf("%s: innovation that understands you", in.Request.Brand),
		Framework: Framework{
			Hero:           "Forward-thinking individuals",
			Challenge:      "Navigating rapid change and uncertainty",
			Transformation: in.Request.Brand + " provides clarity and tools for success",
			Outcome:        "Confident leadership in the new era",
		},
		EmotionalDrivers:  []string{"empowerment", "confidence", "belonging"},
		AlignmentScore:    7.5,
		CulturalRelevance: "Addresses current uncertainty with hope and action",
		HookVariations:    []string{"Innovation that gets you", "Your future, reimagined", "Change the game"},
	}
}

func copyPlaceholder(in workflow.Input) any {
	return Copy{
		Headlines: []Headline{
			{Text: "Discover What's Possible When Innovation Meets You", TargetPlatform: "social media", AppealType: "emotional"},
			{Text: fmt.Sprintf("The Smart Choice for %s", in.Request.Topic), TargetPlatform: "search ads", AppealType: "rational"},
			{Text: "What If Change Was Your Competitive Advantage?", TargetPlatform: "display", AppealType: "curiosity"},
		},
		VideoScripts: []Script{
			{
				Title:        "The Future Is Personal",
				Script:       "[Scene: Person looking at horizon] VO: 'The future isn't something that happens to you.' [Scene: Person taking action] 'It's something you create.' [Scene: Brand logo]",
				Style:        "inspirational",
				CallToAction: "Start Your Journey",
			},
			{
				Title:        "Innovation Simplified",
				Script:       "[Scene: Complex problem] VO: 'Complex challenges need smart solutions.' [Scene: Simple solution] 'We make innovation accessible.' [Scene: Success moment]",
				Style:        "educational",
				CallToAction: "Learn More",
			},
		},
		Variations: Variations{
			ShortForm:  "Innovation that gets you. Transform your future today.",
			MediumForm: "Ready for change that actually makes sense? Discover innovation designed around you.",
			LongForm:   "In a world of constant change, the brands that thrive are those that truly understand their customers.",
		},
		OptimizationNotes: "Test emotional vs rational appeals and CTA urgency",
	}
}

// hooksPlaceholder ranks whatever headlines the copy stage produced, so it
// stays consistent with a degraded or completed upstream.
func hooksPlaceholder(in workflow.Input) any {
	var c Copy
	if err := in.View.Decode(StageCopy, &c); err != nil || len(c.Headlines) == 0 {
		c = copyPlaceholder(in).(Copy)
	}
	ranked := make([]RankedHook, 0, len(c.Headlines))
	for i, h := range c.Headlines {
		score := 8.5 - 0.3*float64(i)
		ranked = append(ranked, RankedHook{
			Headline:     h.Text,
			Shareability: score,
			Engagement:   score,
			Viral:        score,
			Reasons:      []string{"Unranked: original order kept"},
		})
	}
	return Hooks{
		RankedHooks: ranked,
		Factors: EngagementFactors{
			EmotionalTriggers: []string{"curiosity", "aspiration", "empowerment"},
			CognitivePatterns: []string{"open loops", "pattern interrupt", "reframing"},
			SocialProof:       []string{"peer validation", "user success stories"},
		},
		ABTests:      []string{"Test question format vs statement format", "Optimize for mobile vs desktop viewing"},
		Improvements: []string{"Add urgency elements", "Include social proof"},
	}
}

func sequencePlaceholder(in workflow.Input) any {
	steps := []struct{ title, objective, cta, timing string }{
		{"Welcome to Your Transformation Journey", "Set expectations and build excitement", "Complete Your Profile", "immediately after signup"},
		{"The Secret Behind Successful Innovation", "Provide value and establish expertise", "Download Free Guide", "2 days after signup"},
		{"What Leaders Are Doing Differently", "Social proof and aspiration", "Join the Community", "5 days after signup"},
		{"Your Personalized Roadmap", "Direct value delivery and soft pitch", "Start Free Trial", "8 days after signup"},
		{"Don't Let This Opportunity Pass", "Create urgency and drive conversion", "Get Started Today", "12 days after signup"},
	}
	emails := make([]Email, len(steps))
	for i, s := range steps {
		emails[i] = Email{
			Step:         i + 1,
			Title:        s.title,
			Objective:    s.objective,
			CallToAction: s.cta,
			Timing:       s.timing,
		}
	}
	return Sequence{
		Emails: emails,
		Strategy: Strategy{
			OverallArc:       "Welcome, value, social proof, personal value, conversion",
			EmotionalJourney: []string{"excitement", "curiosity", "inspiration", "confidence", "urgency"},
			ValueProgression: "From general insights to personalized recommendations for " + in.Request.Brand,
			ConversionPoints: []string{"Email 4 (soft)", "Email 5 (hard)"},
		},
		AutomationTriggers: []string{"Email open/click behavior", "Website visit activity", "Time-based progression"},
		SuccessMetrics: SuccessMetrics{
			OpenRate:   "25-35% average",
			ClickRate:  "5-8% average",
			Conversion: "3-7% by end of sequence",
		},
	}
}

func insightsPlaceholder(in workflow.Input) any {
	out := Insights{
		Summary: Summary{
			OverallScore: 7.8,
			Strengths:    []string{"Strong engagement rate", "Good brand recall"},
			Weaknesses:   []string{"Low conversion rate", "High cost per acquisition"},
			Benchmark:    "Above average engagement, below average conversion",
		},
		Tips: []Tip{
			{
				Tip:            "Clarify the landing page value proposition and simplify the conversion flow",
				Priority:       "high",
				ExpectedImpact: "25-40% improvement in conversion rate",
				Implementation: "A/B test layouts, reduce form fields, add social proof above the fold",
			},
			{
				Tip:            "Retarget engaged users who did not convert",
				Priority:       "high",
				ExpectedImpact: "15-25% increase in overall conversions",
				Implementation: "Create custom audiences and a nurture sequence",
			},
			{
				Tip:            "Test video creative formats",
				Priority:       "medium",
				ExpectedImpact: "10-20% reduction in acquisition costs",
				Implementation: "Cut 15-30 second versions of the top static ads",
			},
		},
		Opportunities: Opportunities{
			Creative:  "Test more emotional vs rational messaging",
			Targeting: "Narrow audience to the highest converting segments",
			Budget:    "Increase spend on high-performing placements",
			Timing:    "Focus budget on peak engagement hours",
		},
		Recommendations: []string{
			"Launch a seasonal campaign aligned with upcoming trends",
			"Develop a user-generated content campaign",
		},
	}
	attachSignals(&out, in)
	return out
}

// attachSignals adds the locally computed trend scores when live data was requested.
func attachSignals(out *Insights, in workflow.Input) {
	if !in.Request.Flags.IncludeLiveData {
		return
	}
	scores := signals.Score(in.Signals)
	out.Scores = &scores
	out.Sources = in.Signals.Succeeded()
}
