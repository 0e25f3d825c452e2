// Package normalize converts raw backend analysis payloads into the stable
// view model served to the dashboard.
package normalize

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/pulseboard/internal/backend"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

const (
	// InfluencerLimit is how many ranked entries the influencer list keeps.
	InfluencerLimit = 5
	// HashtagLimit is how many hashtags are reported.
	HashtagLimit = 10

	bucketLayout = "2006-01-02"
)

var reHashtag = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Normalize builds the AnalysisResult for a payload. It is a total function:
// a nil payload or malformed records yield zero values, never an error.
func Normalize(payload *backend.AnalysisResponse, jobID string) models.AnalysisResult {
	result, _ := Build(payload, jobID)
	return result
}

// Build normalizes a payload into its AnalysisResult and the normalized
// posts, in source order. Records that are not JSON objects count as neutral
// and are reported in Defects, but contribute nothing else.
func Build(payload *backend.AnalysisResponse, jobID string) (models.AnalysisResult, []models.Post) {
	result := models.AnalysisResult{
		JobID:            jobID,
		Percentages:      map[string]float64{},
		Timeline:         []models.TimelineBucket{},
		Influencers:      []models.Influencer{},
		Hashtags:         []models.HashtagCount{},
		Themes:           []string{},
		ExpertCommentary: []string{},
	}
	posts := []models.Post{}
	if payload == nil {
		return result, posts
	}

	result.Status = payload.Status
	result.CreatedAt = payload.CreatedAt
	result.Themes = append(result.Themes, payload.Themes...)
	result.ExpertCommentary = append(result.ExpertCommentary, payload.ExpertInsights...)
	result.Total = len(payload.DetailedAnalysis)

	for _, raw := range payload.DetailedAnalysis {
		rec, ok := decodeRecord(raw)
		if !ok {
			result.Defects++
			result.SentimentCounts.Add(models.SentimentNeutral)
			continue
		}
		post := Post(rec)
		result.SentimentCounts.Add(post.Sentiment)
		posts = append(posts, post)
	}

	result.Timeline = Timeline(posts)
	result.Influencers = Influencers(posts, InfluencerLimit)
	result.Hashtags = Hashtags(posts, HashtagLimit)
	result.Highlighted = Highlight(posts)

	if len(payload.Percentages) > 0 {
		for k, v := range payload.Percentages {
			result.Percentages[k] = v
		}
	} else {
		result.Percentages = percentages(result.SentimentCounts)
	}

	return result, posts
}

// Timeline groups posts by calendar day of their timestamp. Buckets appear in
// the order their day was first seen; posts without a timestamp are skipped.
func Timeline(posts []models.Post) []models.TimelineBucket {
	buckets := []models.TimelineBucket{}
	index := make(map[string]int)

	for _, p := range posts {
		if p.Timestamp == nil {
			continue
		}
		key := p.Timestamp.Format(bucketLayout)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, models.TimelineBucket{BucketKey: key})
		}
		switch p.Sentiment {
		case models.SentimentPositive:
			buckets[i].Positive++
		case models.SentimentNegative:
			buckets[i].Negative++
		default:
			buckets[i].Neutral++
		}
	}
	return buckets
}

// Influencers ranks posts by engagement score, descending, keeping at most
// limit entries. Equal scores keep their source order.
func Influencers(posts []models.Post, limit int) []models.Influencer {
	ranked := make([]models.Post, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Engagement.Score() > ranked[j].Engagement.Score()
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]models.Influencer, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, models.Influencer{
			Author:          p.Author,
			PostID:          p.ID,
			EngagementScore: p.Engagement.Score(),
			Sentiment:       p.Sentiment,
		})
	}
	return out
}

// Hashtags counts the posts mentioning each hashtag (case-insensitive) and
// returns the top limit, most used first; ties keep first-seen order.
func Hashtags(posts []models.Post, limit int) []models.HashtagCount {
	counts := []models.HashtagCount{}
	index := make(map[string]int)

	for _, p := range posts {
		seen := make(map[string]bool)
		for _, m := range reHashtag.FindAllStringSubmatch(p.Text, -1) {
			tag := strings.ToLower(m[1])
			if seen[tag] {
				continue
			}
			seen[tag] = true
			i, ok := index[tag]
			if !ok {
				i = len(counts)
				index[tag] = i
				counts = append(counts, models.HashtagCount{Tag: tag})
			}
			counts[i].Count++
		}
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// Highlight picks the earliest, latest and most engaged posts. Ties go to the
// post that appears first.
func Highlight(posts []models.Post) models.HighlightedItems {
	var h models.HighlightedItems
	for i := range posts {
		p := &posts[i]
		if h.MostEngaged == nil || p.Engagement.Score() > h.MostEngaged.Engagement.Score() {
			h.MostEngaged = p
		}
		if p.Timestamp == nil {
			continue
		}
		if h.Earliest == nil || p.Timestamp.Before(*h.Earliest.Timestamp) {
			h.Earliest = p
		}
		if h.Latest == nil || p.Timestamp.After(*h.Latest.Timestamp) {
			h.Latest = p
		}
	}
	return models.HighlightedItems{
		Earliest:    clonePost(h.Earliest),
		Latest:      clonePost(h.Latest),
		MostEngaged: clonePost(h.MostEngaged),
	}
}

func clonePost(p *models.Post) *models.Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Media = append([]string{}, p.Media...)
	if p.Timestamp != nil {
		ts := *p.Timestamp
		c.Timestamp = &ts
	}
	return &c
}

func percentages(c models.SentimentCounts) map[string]float64 {
	out := map[string]float64{}
	total := c.Sum()
	if total == 0 {
		return out
	}
	pct := func(n int) float64 {
		return math.Round(float64(n)*1000/float64(total)) / 10
	}
	out[models.SentimentPositive] = pct(c.Positive)
	out[models.SentimentNeutral] = pct(c.Neutral)
	out[models.SentimentNegative] = pct(c.Negative)
	return out
}
