// Package models contains shared data models used across the PulseBoard codebase.
package models

import "time"

// Canonical sentiment keys. Localized labels belong to the presentation layer.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Post is a normalized social-media item.
type Post struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Author     Author            `json:"author"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Engagement EngagementMetrics `json:"engagement_metrics"`
	Sentiment  string            `json:"sentiment"`
	Media      []string          `json:"media"`
	SourceURL  string            `json:"source_url"`
}

// Author describes who published a post. Handle and Name are empty strings
// when neither the record nor its permalink reveal them.
type Author struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Handle        string `json:"handle"`
	AvatarURL     string `json:"avatar_url"`
	Verified      bool   `json:"verified"`
	FollowerCount int    `json:"follower_count"`
}

// EngagementMetrics holds the raw interaction counters of a post.
type EngagementMetrics struct {
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
}

// Score is the engagement score: likes + retweets + replies + quotes.
func (e EngagementMetrics) Score() int {
	return e.Likes + e.Retweets + e.Replies + e.Quotes
}
