package render

import (
	"sentilytics/internal/core"
)

// Sentiment colors shared by every chart.
const (
	ColorPositive = "#10B981"
	ColorNegative = "#EF4444"
	ColorNeutral  = "#F59E0B"
)

// Slice is one labelled value of a pie or bar chart.
type Slice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// Series is one line of a line chart.
type Series struct {
	Key   string `json:"key"`
	Color string `json:"color"`
}

// LineChart is the sentiment trend chart.
type LineChart struct {
	Series []Series          `json:"series"`
	Points []core.TrendPoint `json:"points"`
}

// Style describes how a verdict or sentiment badge is drawn.
type Style struct {
	Icon string `json:"icon"`
	Tone string `json:"tone"` // green, yellow or red
}

// SentimentSlices returns the breakdown as positive, negative, neutral slices.
func SentimentSlices(b core.SentimentBreakdown) []Slice {
	return []Slice{
		{Name: string(core.SentimentPositive), Value: b.Positive, Color: ColorPositive},
		{Name: string(core.SentimentNegative), Value: b.Negative, Color: ColorNegative},
		{Name: string(core.SentimentNeutral), Value: b.Neutral, Color: ColorNeutral},
	}
}

// TrendChart builds the line chart for trend points.
func TrendChart(points []core.TrendPoint) LineChart {
	return LineChart{
		Series: []Series{
			{Key: "positive", Color: ColorPositive},
			{Key: "negative", Color: ColorNegative},
			{Key: "neutral", Color: ColorNeutral},
		},
		Points: points,
	}
}

var sentimentStyles = map[core.Sentiment]Style{
	core.SentimentPositive: {Icon: "smile-beam", Tone: "green"},
	core.SentimentNegative: {Icon: "frown", Tone: "red"},
	core.SentimentNeutral:  {Icon: "meh", Tone: "yellow"},
}

var verdictStyles = map[core.Verdict]Style{
	core.VerdictRecommended:    {Icon: "thumbs-up", Tone: "green"},
	core.VerdictConsider:       {Icon: "search", Tone: "yellow"},
	core.VerdictNotRecommended: {Icon: "thumbs-down", Tone: "red"},
}

// SentimentStyle returns the badge style for s.
func SentimentStyle(s core.Sentiment) Style {
	if st, ok := sentimentStyles[s]; ok {
		return st
	}
	return sentimentStyles[core.SentimentNeutral]
}

// VerdictStyle returns the badge style for v.
func VerdictStyle(v core.Verdict) Style {
	if st, ok := verdictStyles[v]; ok {
		return st
	}
	return verdictStyles[core.VerdictConsider]
}
