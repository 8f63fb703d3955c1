// Package confidence merges the URL, content, structural, field and adaptive
// signals into one bounded score and a registration-form decision.
//
// The score is a capped sum over named categories:
//
//	domain               <= 20  URL domain points
//	urlPattern           <= 15  URL path/query keyword points
//	formFields           <= 25  structural score x 0.25
//	stateIdentification  <= 15  15 from the URL, 10 from page content
//	fieldClassification  <= 25  5 per business category + round(10 x classified ratio)
//	businessTerminology  <= 15  content score x 0.15
//	adaptive             <= 15  history score
//
// The decision is a disjunction: any one strong line of evidence suffices.
package confidence

import (
	"fmt"
	"math"
	"slices"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/formdetect/internal/content"
	"github.com/hazyhaar/regdetect/formdetect/internal/structure"
	"github.com/hazyhaar/regdetect/formdetect/internal/urlsignal"
)

// Breakdown keys, in report order.
const (
	KeyDomain              = "domain"
	KeyURLPattern          = "urlPattern"
	KeyFormFields          = "formFields"
	KeyStateIdentification = "stateIdentification"
	KeyFieldClassification = "fieldClassification"
	KeyBusinessTerminology = "businessTerminology"
	KeyAdaptive            = "adaptive"
)

// Keys lists the breakdown keys in report order.
var Keys = []string{
	KeyDomain, KeyURLPattern, KeyFormFields, KeyStateIdentification,
	KeyFieldClassification, KeyBusinessTerminology, KeyAdaptive,
}

var caps = map[string]int{
	KeyDomain:              20,
	KeyURLPattern:          15,
	KeyFormFields:          25,
	KeyStateIdentification: 15,
	KeyFieldClassification: 25,
	KeyBusinessTerminology: 15,
	KeyAdaptive:            15,
}

// Decision rule names reported in Outcome.DecisionRule.
const (
	RuleScore            = "score"
	RuleClassifiedFields = "classified_fields"
	RuleURLAndStructure  = "url_and_structure"
	RuleStateAndFields   = "state_and_fields"
	RuleAdaptiveOverride = "adaptive_override"
)

// Decision thresholds.
const (
	scoreThreshold         = 50
	minClassifiedRatio     = 0.5
	minAvgFieldConfidence  = 70
	minBusinessCategories  = 2
	minURLScore            = 60
	minStructuralScore     = 30
	minStateClassified     = 5
	urlStatePoints         = 15
	contentStatePoints     = 10
	businessCategoryPoints = 5
)

// Input gathers every signal of one pass.
type Input struct {
	URL              urlsignal.Signal
	Content          content.Signal
	Structural       structure.Signal
	Fields           []detection.Field
	AdaptiveScore    int
	AdaptiveOverride bool
	// Business reports whether a category is business-specific.
	Business func(detection.Category) bool
}

// Outcome is the aggregated result.
type Outcome struct {
	Score              int
	Breakdown          map[string]int
	IsBusiness         bool
	DecisionRule       string
	FormType           detection.FormType
	State              string
	Classified         int
	ClassifiedRatio    float64
	AvgFieldConfidence float64
	BusinessCategories []detection.Category
	Reasons            []string
}

// Aggregate combines in into an Outcome. It is a pure function.
func Aggregate(in Input) Outcome {
	out := Outcome{Breakdown: make(map[string]int, len(Keys))}

	business := make(map[detection.Category]bool)
	confSum := 0
	for _, f := range in.Fields {
		cat := f.Classification.Category
		if cat == detection.CategoryOther {
			continue
		}
		out.Classified++
		confSum += f.Classification.Confidence
		if in.Business != nil && in.Business(cat) {
			business[cat] = true
		}
	}
	if len(in.Fields) > 0 {
		out.ClassifiedRatio = float64(out.Classified) / float64(len(in.Fields))
	}
	if out.Classified > 0 {
		out.AvgFieldConfidence = float64(confSum) / float64(out.Classified)
	}
	for c := range business {
		out.BusinessCategories = append(out.BusinessCategories, c)
	}
	slices.Sort(out.BusinessCategories)

	statePts := 0
	switch {
	case in.URL.State != "":
		out.State, statePts = in.URL.State, urlStatePoints
	case in.Content.State != "":
		out.State, statePts = in.Content.State, contentStatePoints
	}

	raw := map[string]int{
		KeyDomain:              in.URL.DomainPoints,
		KeyURLPattern:          in.URL.PatternPoints,
		KeyFormFields:          round(float64(in.Structural.Score) * 0.25),
		KeyStateIdentification: statePts,
		KeyFieldClassification: businessCategoryPoints*len(business) + round(10*out.ClassifiedRatio),
		KeyBusinessTerminology: round(float64(in.Content.Score) * 0.15),
		KeyAdaptive:            in.AdaptiveScore,
	}
	total := 0
	for _, k := range Keys {
		v := clamp(raw[k], 0, caps[k])
		out.Breakdown[k] = v
		total += v
		if v > 0 {
			out.Reasons = append(out.Reasons, fmt.Sprintf("%s %+d", k, v))
		}
	}
	out.Score = clamp(total, 0, 100)

	out.DecisionRule = decide(in, out, len(business))
	out.IsBusiness = out.DecisionRule != ""
	if out.IsBusiness {
		out.Reasons = append(out.Reasons, "decision: "+out.DecisionRule)
		out.FormType = formType(in.Content.FormTypeHints, business)
	} else {
		out.FormType = detection.FormUnknown
	}
	return out
}

// decide returns the name of the first rule that fires, or "".
func decide(in Input, out Outcome, businessCats int) string {
	switch {
	case out.Score >= scoreThreshold:
		return RuleScore
	case out.ClassifiedRatio >= minClassifiedRatio && out.AvgFieldConfidence >= minAvgFieldConfidence && businessCats >= minBusinessCategories:
		return RuleClassifiedFields
	case in.URL.Score >= minURLScore && in.Structural.Score >= minStructuralScore && businessCats >= 1:
		return RuleURLAndStructure
	case out.State != "" && out.Classified >= minStateClassified:
		return RuleStateAndFields
	case in.AdaptiveOverride:
		return RuleAdaptiveOverride
	}
	return ""
}

// formType prefers page-content hints (already in precedence order), then
// falls back to the classified categories.
func formType(hints []detection.FormType, business map[detection.Category]bool) detection.FormType {
	if len(hints) > 0 {
		return hints[0]
	}
	switch {
	case business["state_tax_id"]:
		return detection.FormTaxRegistration
	case business["dba_name"] && !business["business_name"]:
		return detection.FormDBARegistration
	case business["registered_agent"] && business["entity_type"]:
		return detection.FormLLCFormation
	}
	return detection.FormBusinessRegistration
}

func round(f float64) int { return int(math.Round(f)) }

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
