package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sentilytics/internal/core"
)

func sampleProduct() core.ProductAnalysisResult {
	return core.ProductAnalysisResult{
		ProductName:         "Acme \"Pro\" Blender",
		OverallRating:       4.5,
		ReviewCount:         120,
		Summary:             "Loud, but strong.",
		Verdict:             core.VerdictRecommended,
		Sentiment:           core.SentimentBreakdown{Positive: 70, Negative: 20, Neutral: 10},
		TopPositiveKeywords: []string{"strong", "fast"},
		TopNegativeKeywords: []string{"loud"},
		SampleReviews: []core.SampleReview{
			{Text: "Love it, truly", Sentiment: core.SentimentPositive},
		},
	}
}

func TestProductCSV(t *testing.T) {
	export, err := ProductCSV(sampleProduct())
	if err != nil {
		t.Fatalf("ProductCSV failed: %v", err)
	}

	if export.Filename != "sentilytics_Acme_Pro_Blender_analysis.csv" {
		t.Errorf("Unexpected filename %s", export.Filename)
	}

	content := string(export.Data)
	want := []string{
		"Category,Value\r\n",
		"Product Name,\"Acme \"\"Pro\"\" Blender\"\r\n",
		"Overall Rating,4.5/5\r\n",
		"Review Count,120\r\n",
		"Verdict,Recommended\r\n\r\n",
		"Sentiment Analysis (%)\r\nPositive,70\r\nNegative,20\r\nNeutral,10\r\n",
		"Top Positive Keywords\r\n\"strong,fast\"\r\n",
		"Sentiment,Review Text\r\nPositive,\"Love it, truly\"\r\n",
	}
	for _, w := range want {
		if !strings.Contains(content, w) {
			t.Errorf("CSV missing %q in:\n%s", w, content)
		}
	}
}

func TestProductCSV_Deterministic(t *testing.T) {
	a, _ := ProductCSV(sampleProduct())
	b, _ := ProductCSV(sampleProduct())
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("Repeated exports should be byte-identical")
	}
}

func TestFileCSV(t *testing.T) {
	export, err := FileCSV(core.FileAnalysisResult{
		TotalReviews:          42,
		SentimentDistribution: core.SentimentBreakdown{Positive: 50, Negative: 30, Neutral: 20},
		TopKeywords:           core.KeywordSet{Positive: []string{"good"}, Negative: []string{"bad", "slow"}},
	})
	if err != nil {
		t.Fatalf("FileCSV failed: %v", err)
	}
	content := string(export.Data)
	if !strings.Contains(content, "Total Reviews,42\r\n") || !strings.Contains(content, "\"bad,slow\"\r\n") {
		t.Errorf("Unexpected CSV:\n%s", content)
	}
}

func TestReviewCSV(t *testing.T) {
	export, err := ReviewCSV("This product is amazing!", core.SingleReviewResult{
		Sentiment: core.SentimentPositive, Confidence: 0.95, Explanation: "Clear praise.",
	})
	if err != nil {
		t.Fatalf("ReviewCSV failed: %v", err)
	}
	if !strings.Contains(string(export.Data), "Confidence,95%\r\n") {
		t.Errorf("Unexpected CSV:\n%s", export.Data)
	}
}

func TestCompetitiveCSV(t *testing.T) {
	one := sampleProduct()
	two := sampleProduct()
	two.ProductName = "Other Blender"

	export, err := CompetitiveCSV(core.CompetitiveAnalysisResult{ProductOne: one, ProductTwo: two, ComparisonSummary: "Close call."})
	if err != nil {
		t.Fatalf("CompetitiveCSV failed: %v", err)
	}
	if !strings.HasSuffix(export.Filename, "_vs_Other_Blender_comparison.csv") {
		t.Errorf("Unexpected filename %s", export.Filename)
	}
	if strings.Count(string(export.Data), "Product Name,") != 2 {
		t.Error("Both products should be exported")
	}
}

func TestProductTableCSV(t *testing.T) {
	export, err := ProductTableCSV([]core.ProductSnapshot{
		{Name: "iPhone 15 Pro", ReviewCount: 1247, Positive: 78, Negative: 15, OverallRating: 4.7},
	})
	if err != nil {
		t.Fatalf("ProductTableCSV failed: %v", err)
	}
	want := "Product,Reviews,Positive %,Negative %,Rating\r\niPhone 15 Pro,1247,78,15,4.7\r\n"
	if string(export.Data) != want {
		t.Errorf("Expected %q, got %q", want, export.Data)
	}
	if export.Filename != "product_comparison.csv" {
		t.Errorf("Unexpected filename %s", export.Filename)
	}
}

func TestSentimentSlices(t *testing.T) {
	slices := SentimentSlices(core.SentimentBreakdown{Positive: 60, Negative: 25, Neutral: 15})
	if len(slices) != 3 {
		t.Fatalf("Expected 3 slices, got %d", len(slices))
	}
	if slices[0].Color != ColorPositive || slices[1].Color != ColorNegative || slices[2].Color != ColorNeutral {
		t.Errorf("Unexpected colors %+v", slices)
	}
	if slices[1].Value != 25 {
		t.Errorf("Expected negative 25, got %d", slices[1].Value)
	}
}

func TestStyles(t *testing.T) {
	if VerdictStyle(core.VerdictNotRecommended).Tone != "red" {
		t.Error("Not Recommended should be red")
	}
	if SentimentStyle(core.SentimentPositive).Icon != "smile-beam" {
		t.Error("Positive should use smile-beam")
	}
	if VerdictStyle("bogus").Tone != "yellow" {
		t.Error("Unknown verdicts should fall back to Consider styling")
	}
}

func TestWriteExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteExport(Export{Filename: "x.csv", Data: []byte("a,b\r\n")}, dir)
	if err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "a,b\r\n" {
		t.Errorf("Unexpected file content %q (%v)", data, err)
	}
}
