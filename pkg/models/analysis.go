package models

// AnalysisResult is the normalized output of a completed search job.
// It is built once per run and never mutated afterwards.
type AnalysisResult struct {
	JobID            string             `json:"job_id"`
	Status           string             `json:"status"`
	CreatedAt        string             `json:"created_at,omitempty"`
	Total            int                `json:"total"`
	SentimentCounts  SentimentCounts    `json:"sentiment_counts"`
	Percentages      map[string]float64 `json:"percentages"`
	Timeline         []TimelineBucket   `json:"timeline"`
	Influencers      []Influencer       `json:"influencers"`
	Hashtags         []HashtagCount     `json:"hashtags"`
	Highlighted      HighlightedItems   `json:"highlighted_items"`
	Themes           []string           `json:"themes"`
	ExpertCommentary []string           `json:"expert_commentary"`
	// Defects counts records that could not be decoded and contributed only
	// zero values.
	Defects int `json:"defects"`
}

// SentimentCounts are keyed by the canonical English sentiment names.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Sum returns the number of items counted.
func (c SentimentCounts) Sum() int {
	return c.Positive + c.Neutral + c.Negative
}

// Add increments the counter for sentiment. Anything that is not positive or
// negative counts as neutral.
func (c *SentimentCounts) Add(sentiment string) {
	switch sentiment {
	case SentimentPositive:
		c.Positive++
	case SentimentNegative:
		c.Negative++
	default:
		c.Neutral++
	}
}

// TimelineBucket holds per-sentiment counts for one calendar day.
type TimelineBucket struct {
	BucketKey string `json:"bucket_key"`
	Positive  int    `json:"positive"`
	Neutral   int    `json:"neutral"`
	Negative  int    `json:"negative"`
}

// Influencer is one ranked post author.
type Influencer struct {
	Author          Author `json:"author"`
	PostID          string `json:"post_id"`
	EngagementScore int    `json:"engagement_score"`
	Sentiment       string `json:"sentiment"`
}

// HashtagCount is a hashtag and how many posts used it.
type HashtagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// HighlightedItems points at notable posts. Each is nil when the source set
// offers no candidate.
type HighlightedItems struct {
	Earliest    *Post `json:"earliest,omitempty"`
	Latest      *Post `json:"latest,omitempty"`
	MostEngaged *Post `json:"most_engaged,omitempty"`
}

// SearchOutcome is what a successful search run hands back to its caller.
type SearchOutcome struct {
	JobID    string         `json:"job_id"`
	Analysis AnalysisResult `json:"analysis"`
	Posts    []Post         `json:"posts"`
}
