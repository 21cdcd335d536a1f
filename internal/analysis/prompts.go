package analysis

import (
	"fmt"
)

// MaxFileContentRunes bounds the review text embedded in a file analysis prompt.
const MaxFileContentRunes = 50000

const (
	productURLPromptTemplate = "Critically analyze the product reviews from the URL: %s. " +
		"Provide the product name, overall rating out of 5, and total review count. " +
		"Summarize the sentiment as percentages for positive, negative, and neutral (ensure they sum to 100). " +
		"Extract the top 5 most impactful positive keywords and top 5 negative keywords. " +
		"Also, provide 4 diverse sample reviews with their corresponding sentiment ('Positive', 'Negative', or 'Neutral'). " +
		"After the analysis, provide a concise one-paragraph summary of the product's reception based on the reviews. " +
		"Finally, give a clear verdict: 'Recommended', 'Consider', or 'Not Recommended'."

	reviewFilePromptTemplate = "Analyze the following text which contains multiple product reviews. " +
		"Provide the total number of reviews found. " +
		"Calculate the sentiment distribution as percentages for positive, negative, and neutral (summing to 100). " +
		"Extract the top 4 most common positive and top 4 negative keywords from the entire text. " +
		"Here is the review data: \n\n%s"

	singleReviewPromptTemplate = "Analyze the sentiment of this review: \"%s\". " +
		"Classify it as 'Positive', 'Negative', or 'Neutral'. " +
		"Provide a confidence score from 0 to 1. " +
		"Give a brief, one-sentence explanation for your classification."

	competitivePromptTemplate = `Perform a comprehensive competitive analysis of the products from two URLs.
    URL 1: %s
    URL 2: %s
    For each product, provide a full analysis using the provided schema (product name, overall rating, review count, sentiment breakdown, top 5 keywords, and 4 sample reviews).
    After analyzing both, provide a concise but insightful comparative summary (3-4 sentences) highlighting the key differentiators, target audiences, and relative strengths/weaknesses.`
)

// ProductURLPrompt builds the prompt for a single product URL.
func ProductURLPrompt(url string) string {
	return fmt.Sprintf(productURLPromptTemplate, url)
}

// ReviewFilePrompt builds the prompt for bulk review text, truncating content first.
func ReviewFilePrompt(content string) string {
	return fmt.Sprintf(reviewFilePromptTemplate, truncateRunes(content, MaxFileContentRunes))
}

// SingleReviewPrompt builds the prompt for one review.
func SingleReviewPrompt(review string) string {
	return fmt.Sprintf(singleReviewPromptTemplate, review)
}

// CompetitivePrompt builds the prompt comparing two product URLs.
func CompetitivePrompt(url1, url2 string) string {
	return fmt.Sprintf(competitivePromptTemplate, url1, url2)
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
