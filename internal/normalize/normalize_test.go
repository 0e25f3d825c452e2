package normalize

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kiranshivaraju/pulseboard/internal/backend"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payload decodes a JSON analysis payload the same way the backend client does.
func payload(t *testing.T, body string) *backend.AnalysisResponse {
	t.Helper()
	var a backend.AnalysisResponse
	require.NoError(t, json.Unmarshal([]byte(body), &a))
	return &a
}

func record(t *testing.T, body string) backend.RawRecord {
	t.Helper()
	var r backend.RawRecord
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	return r
}

// --- Normalize ---

func TestNormalize_EmptyDetailedAnalysis(t *testing.T) {
	result := Normalize(payload(t, `{"detailed_analysis": [], "themes": ["a"]}`), "42")

	assert.Equal(t, models.SentimentCounts{}, result.SentimentCounts)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Timeline)
	assert.Empty(t, result.Influencers)
	assert.Empty(t, result.Hashtags)
	assert.Nil(t, result.Highlighted.Earliest)
	assert.Nil(t, result.Highlighted.Latest)
	assert.Nil(t, result.Highlighted.MostEngaged)
	assert.Equal(t, []string{"a"}, result.Themes)
	assert.Equal(t, "42", result.JobID)
}

func TestNormalize_NilPayload(t *testing.T) {
	var result models.AnalysisResult
	assert.NotPanics(t, func() { result = Normalize(nil, "7") })
	assert.Equal(t, "7", result.JobID)
	assert.NotNil(t, result.Timeline)
	assert.NotNil(t, result.Themes)
}

func TestNormalize_CountsSumToRecordCount(t *testing.T) {
	p := payload(t, `{"detailed_analysis": [
		{"sentiment": "positive"},
		{"sentiment": "POSITIVE "},
		{"sentiment": "negative"},
		{"sentiment": "mixed"},
		{},
		42,
		"not a record",
		{"sentiment": "neutral"}
	]}`)

	result := Normalize(p, "1")

	assert.Equal(t, 8, result.Total)
	assert.Equal(t, result.Total, result.SentimentCounts.Sum())
	assert.Equal(t, 2, result.SentimentCounts.Positive)
	assert.Equal(t, 1, result.SentimentCounts.Negative)
	assert.Equal(t, 5, result.SentimentCounts.Neutral)
	assert.Equal(t, 2, result.Defects)
}

func TestNormalize_ScenarioTwoPositiveOneNegative(t *testing.T) {
	p := payload(t, `{
		"status": "completed",
		"detailed_analysis": [
			{"tweet_id": "1", "text": "great", "sentiment": "positive", "created_at": "2024-03-01T10:00:00Z"},
			{"tweet_id": "2", "text": "love it", "sentiment": "positive", "created_at": "2024-03-01T12:00:00Z"},
			{"tweet_id": "3", "text": "awful", "sentiment": "negative", "created_at": "2024-03-02T09:00:00Z"}
		]
	}`)

	result, posts := Build(p, "42")

	assert.Equal(t, models.SentimentCounts{Positive: 2, Neutral: 0, Negative: 1}, result.SentimentCounts)
	assert.Len(t, posts, 3)
	assert.Equal(t, "completed", result.Status)
	assert.InDelta(t, 66.7, result.Percentages["positive"], 0.001)
	assert.InDelta(t, 33.3, result.Percentages["negative"], 0.001)
}

func TestNormalize_PercentagesPassThrough(t *testing.T) {
	p := payload(t, `{"percentages": {"positive": 50, "negative": 50}, "detailed_analysis": [{"sentiment": "neutral"}]}`)
	result := Normalize(p, "1")
	assert.Equal(t, map[string]float64{"positive": 50, "negative": 50}, result.Percentages)
}

func TestNormalize_KeepsCanonicalKeys(t *testing.T) {
	result := Normalize(payload(t, `{"detailed_analysis": [{"sentiment": "Negative"}]}`), "1")
	b, err := json.Marshal(result.SentimentCounts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"positive":0,"neutral":0,"negative":1}`, string(b))
}

// --- Timeline ---

func TestTimeline_FirstSeenOrder(t *testing.T) {
	p := payload(t, `{"detailed_analysis": [
		{"sentiment": "positive", "created_at": "2024-03-02T10:00:00Z"},
		{"sentiment": "negative", "created_at": "2024-03-01T10:00:00Z"},
		{"sentiment": "neutral",  "created_at": "2024-03-02T23:59:59Z"},
		{"sentiment": "positive", "created_at": "not a date"},
		{"sentiment": "negative", "created_at": "2024-03-01 08:00:00"}
	]}`)

	result := Normalize(p, "1")

	require.Len(t, result.Timeline, 2)
	assert.Equal(t, models.TimelineBucket{BucketKey: "2024-03-02", Positive: 1, Neutral: 1}, result.Timeline[0])
	assert.Equal(t, models.TimelineBucket{BucketKey: "2024-03-01", Negative: 2}, result.Timeline[1])
}

// --- Influencers ---

func engagementRecords(scores ...int) string {
	out := "["
	for i, s := range scores {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"tweet_id": "p%d", "likes": %d, "username": "user%d"}`, i, s, i)
	}
	return out + "]"
}

func TestInfluencers_StableTies(t *testing.T) {
	p := payload(t, `{"detailed_analysis": `+engagementRecords(10, 30, 30, 5)+`}`)

	result := Normalize(p, "1")

	require.Len(t, result.Influencers, 4)
	got := []string{}
	for _, inf := range result.Influencers {
		got = append(got, inf.PostID)
	}
	assert.Equal(t, []string{"p1", "p2", "p0", "p3"}, got)
	assert.Equal(t, 30, result.Influencers[0].EngagementScore)
}

func TestInfluencers_TopFive(t *testing.T) {
	p := payload(t, `{"detailed_analysis": `+engagementRecords(1, 2, 3, 4, 5, 6, 7)+`}`)
	result := Normalize(p, "1")

	require.Len(t, result.Influencers, InfluencerLimit)
	assert.Equal(t, 7, result.Influencers[0].EngagementScore)
	assert.Equal(t, 3, result.Influencers[4].EngagementScore)
}

func TestEngagementScore_SumsAllCounters(t *testing.T) {
	post := Post(record(t, `{"likes": 1, "retweets": "2", "replies": 3, "quotes": 4}`))
	assert.Equal(t, 10, post.Engagement.Score())
}

func TestEngagement_FallsBackToMetadata(t *testing.T) {
	post := Post(record(t, `{"likes": 5, "metadata": {"likes": 100, "retweets": 7}}`))
	assert.Equal(t, 5, post.Engagement.Likes)
	assert.Equal(t, 7, post.Engagement.Retweets)
}

// --- Highlighted ---

func TestHighlight(t *testing.T) {
	p := payload(t, `{"detailed_analysis": [
		{"tweet_id": "a", "likes": 5,  "created_at": "2024-03-02T10:00:00Z"},
		{"tweet_id": "b", "likes": 50, "created_at": "2024-03-01T10:00:00Z"},
		{"tweet_id": "c", "likes": 50, "created_at": "2024-03-03T10:00:00Z"},
		{"tweet_id": "d", "likes": 1,  "created_at": "2024-03-01T10:00:00Z"}
	]}`)

	h := Normalize(p, "1").Highlighted

	require.NotNil(t, h.Earliest)
	require.NotNil(t, h.Latest)
	require.NotNil(t, h.MostEngaged)
	assert.Equal(t, "b", h.Earliest.ID, "first of the tied earliest posts wins")
	assert.Equal(t, "c", h.Latest.ID)
	assert.Equal(t, "b", h.MostEngaged.ID, "first of the tied most engaged posts wins")
}

func TestHighlight_NoTimestamps(t *testing.T) {
	h := Normalize(payload(t, `{"detailed_analysis": [{"tweet_id": "a"}]}`), "1").Highlighted
	assert.Nil(t, h.Earliest)
	assert.Nil(t, h.Latest)
	require.NotNil(t, h.MostEngaged)
	assert.Equal(t, "a", h.MostEngaged.ID)
}

// --- Hashtags ---

func TestHashtags(t *testing.T) {
	p := payload(t, `{"detailed_analysis": [
		{"text": "#Vote early #vote often"},
		{"text": "#climate matters #Vote"},
		{"text": "#climate"},
		{"text": "#économie"}
	]}`)

	got := Normalize(p, "1").Hashtags

	assert.Equal(t, []models.HashtagCount{
		{Tag: "vote", Count: 2},
		{Tag: "climate", Count: 2},
		{Tag: "économie", Count: 1},
	}, got)
}

// --- Author fallback ---

func TestAuthor_StructuredFields(t *testing.T) {
	post := Post(record(t, `{
		"username": "@jane", "name": "Jane Doe", "author_id": 99,
		"profile_image_url": "https://img/jane.png", "verified": "true", "followers_count": "1200"
	}`))

	assert.Equal(t, models.Author{
		ID:            "99",
		Name:          "Jane Doe",
		Handle:        "jane",
		AvatarURL:     "https://img/jane.png",
		Verified:      true,
		FollowerCount: 1200,
	}, post.Author)
}

func TestAuthor_MetadataAuthor(t *testing.T) {
	post := Post(record(t, `{"metadata": {"author": {"username": "bob", "name": "Bob", "followers_count": 10}}}`))
	assert.Equal(t, "bob", post.Author.Handle)
	assert.Equal(t, "Bob", post.Author.Name)
	assert.Equal(t, 10, post.Author.FollowerCount)
}

func TestAuthor_FromPermalink(t *testing.T) {
	post := Post(record(t, `{"metadata": {"tweet_url": "https://x.com/newsdesk/status/123"}}`))
	assert.Equal(t, "newsdesk", post.Author.Handle)
	assert.Equal(t, "newsdesk", post.Author.Name)
	assert.Equal(t, "https://x.com/newsdesk/status/123", post.SourceURL)
}

func TestAuthor_NoSourceYieldsEmptyStrings(t *testing.T) {
	var post models.Post
	assert.NotPanics(t, func() { post = Post(record(t, `{"text": "orphan"}`)) })
	assert.Equal(t, "", post.Author.Handle)
	assert.Equal(t, "", post.Author.Name)
}

func TestAuthor_MetadataNotAnObject(t *testing.T) {
	post := Post(record(t, `{"metadata": "broken", "sentiment": "positive"}`))
	assert.Equal(t, "", post.Author.Handle)
	assert.Equal(t, models.SentimentPositive, post.Sentiment)
}

func TestHandleFromURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "twitter status", input: "https://twitter.com/jack/status/20", expected: "jack"},
		{name: "www prefix", input: "https://www.x.com/nasa/status/1", expected: "nasa"},
		{name: "no scheme", input: "x.com/someone/status/1", expected: "someone"},
		{name: "at prefix", input: "https://social.example/@alice/123", expected: "alice"},
		{name: "bare profile", input: "https://x.com/bob", expected: "bob"},
		{name: "reserved segment", input: "https://x.com/i/web/status/1", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "garbage", input: "not a url", expected: ""},
		{name: "no path", input: "https://x.com/", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HandleFromURL(tt.input))
		})
	}
}

// --- Post fields ---

func TestPost_FullRecord(t *testing.T) {
	post := Post(record(t, `{
		"id": 1, "tweet_id": "1700", "content": "fallback text", "text": "hello #world",
		"sentiment": "positive", "created_at": "Fri Mar 01 10:00:00 +0000 2024",
		"media": [{"media_url_https": "https://img/1.jpg"}, "https://img/2.jpg", {"type": "video"}],
		"tweet_url": "https://x.com/u/status/1700"
	}`))

	assert.Equal(t, "1700", post.ID)
	assert.Equal(t, "hello #world", post.Text)
	require.NotNil(t, post.Timestamp)
	assert.True(t, post.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, post.Media)
	assert.Equal(t, "https://x.com/u/status/1700", post.SourceURL)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
		day   string
	}{
		{"2024-03-01T10:00:00Z", true, "2024-03-01"},
		{"2024-03-01T10:00:00.123456Z", true, "2024-03-01"},
		{"2024-03-01T23:30:00-05:00", true, "2024-03-01"},
		{"2024-03-01 10:00:00", true, "2024-03-01"},
		{"2024-03-01", true, "2024-03-01"},
		{"1709287200", true, "2024-03-01"},
		{"1709287200000", true, "2024-03-01"},
		{"yesterday", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ts, ok := ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.day, ts.Format(bucketLayout))
			}
		})
	}
}
