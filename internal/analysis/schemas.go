package analysis

import (
	"sentilytics/internal/core"

	"google.golang.org/genai"
)

// Array cardinalities requested from the model.
const (
	MaxProductKeywords = 5
	MaxSampleReviews   = 4
	MaxFileKeywords    = 4
)

func sentimentLabels() []string {
	out := make([]string, len(core.Sentiments))
	for i, s := range core.Sentiments {
		out[i] = string(s)
	}
	return out
}

func verdictLabels() []string {
	out := make([]string, len(core.Verdicts))
	for i, v := range core.Verdicts {
		out[i] = string(v)
	}
	return out
}

func percentSchema() *genai.Schema {
	return &genai.Schema{
		Type:    genai.TypeInteger,
		Minimum: genai.Ptr(0.0),
		Maximum: genai.Ptr(100.0),
	}
}

func breakdownSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"positive": percentSchema(),
			"negative": percentSchema(),
			"neutral":  percentSchema(),
		},
		Required: []string{"positive", "negative", "neutral"},
	}
}

func keywordsSchema(max int64) *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeArray,
		Items:    &genai.Schema{Type: genai.TypeString},
		MaxItems: genai.Ptr(max),
	}
}

// ProductAnalysisSchema returns the response schema for a single product URL analysis.
func ProductAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"productName": {Type: genai.TypeString},
			"overallRating": {
				Type:    genai.TypeNumber,
				Minimum: genai.Ptr(0.0),
				Maximum: genai.Ptr(5.0),
			},
			"reviewCount": {
				Type:    genai.TypeInteger,
				Minimum: genai.Ptr(0.0),
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "A concise one-paragraph summary of the product's reception based on reviews.",
			},
			"verdict": {
				Type: genai.TypeString,
				Enum: verdictLabels(),
			},
			"sentiment":           breakdownSchema(),
			"topPositiveKeywords": keywordsSchema(MaxProductKeywords),
			"topNegativeKeywords": keywordsSchema(MaxProductKeywords),
			"sampleReviews": {
				Type:     genai.TypeArray,
				MaxItems: genai.Ptr(int64(MaxSampleReviews)),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text":      {Type: genai.TypeString},
						"sentiment": {Type: genai.TypeString, Enum: sentimentLabels()},
					},
					Required: []string{"text", "sentiment"},
				},
			},
		},
		Required: []string{
			"productName", "overallRating", "reviewCount", "summary", "verdict",
			"sentiment", "topPositiveKeywords", "topNegativeKeywords", "sampleReviews",
		},
	}
}

// FileAnalysisSchema returns the response schema for a bulk review file.
func FileAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"totalReviews": {
				Type:    genai.TypeInteger,
				Minimum: genai.Ptr(0.0),
			},
			"sentimentDistribution": breakdownSchema(),
			"topKeywords": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"positive": keywordsSchema(MaxFileKeywords),
					"negative": keywordsSchema(MaxFileKeywords),
				},
				Required: []string{"positive", "negative"},
			},
		},
		Required: []string{"totalReviews", "sentimentDistribution", "topKeywords"},
	}
}

// SingleReviewSchema returns the response schema for one free-text review.
func SingleReviewSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"sentiment": {Type: genai.TypeString, Enum: sentimentLabels()},
			"confidence": {
				Type:    genai.TypeNumber,
				Minimum: genai.Ptr(0.0),
				Maximum: genai.Ptr(1.0),
			},
			"explanation": {Type: genai.TypeString},
		},
		Required: []string{"sentiment", "confidence", "explanation"},
	}
}

// CompetitiveAnalysisSchema returns the response schema for a two-product comparison.
func CompetitiveAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"productOne": ProductAnalysisSchema(),
			"productTwo": ProductAnalysisSchema(),
			"comparisonSummary": {
				Type:        genai.TypeString,
				Description: "A detailed summary comparing the two products.",
			},
		},
		Required: []string{"productOne", "productTwo", "comparisonSummary"},
	}
}

// SchemaFor returns the response schema for an analysis kind.
func SchemaFor(kind core.AnalysisKind) *genai.Schema {
	switch kind {
	case core.KindProductURL:
		return ProductAnalysisSchema()
	case core.KindFile:
		return FileAnalysisSchema()
	case core.KindReview:
		return SingleReviewSchema()
	case core.KindCompetitive:
		return CompetitiveAnalysisSchema()
	}
	return nil
}
