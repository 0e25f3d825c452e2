package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/pulseboard/internal/backend"
	"github.com/kiranshivaraju/pulseboard/pkg/models"
)

// rePermalink matches "domain/<handle>/..." and captures the handle.
var rePermalink = regexp.MustCompile(`^(?:https?://)?(?:www\.|mobile\.)?[A-Za-z0-9.-]+\.[A-Za-z]{2,}/@?([A-Za-z0-9_]{1,50})(?:[/?#]|$)`)

// Path segments that look like handles but are not.
var reservedSegments = map[string]bool{
	"i":       true,
	"intent":  true,
	"search":  true,
	"hashtag": true,
	"home":    true,
	"share":   true,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	time.RubyDate,
	"2006-01-02",
}

// decodeRecord decodes one raw record. ok is false when the record is not a
// JSON object at all.
func decodeRecord(raw json.RawMessage) (backend.RawRecord, bool) {
	var rec backend.RawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return backend.RawRecord{}, false
	}
	return rec, true
}

// Post converts a partial record into a fully populated Post. Missing
// fields become zero values; it never fails.
func Post(rec backend.RawRecord) models.Post {
	p := models.Post{
		ID:        firstNonEmpty(rec.TweetID, rec.ID),
		Text:      firstNonEmpty(rec.Text, rec.Content),
		Sentiment: Sentiment(string(rec.Sentiment)),
		SourceURL: firstNonEmpty(rec.Metadata.TweetURL, rec.TweetURL),
		Engagement: models.EngagementMetrics{
			Likes:    firstPositive(rec.Likes, rec.Metadata.Likes),
			Retweets: firstPositive(rec.Retweets, rec.Metadata.Retweets),
			Replies:  firstPositive(rec.Replies, rec.Metadata.Replies),
			Quotes:   firstPositive(rec.Quotes, rec.Metadata.Quotes),
		},
		Media: []string{},
	}

	if ts, ok := ParseTimestamp(firstNonEmpty(rec.CreatedAt, rec.Timestamp, rec.Metadata.CreatedAt)); ok {
		p.Timestamp = &ts
	}

	switch {
	case len(rec.Media) > 0:
		p.Media = append(p.Media, rec.Media...)
	case len(rec.Metadata.Media) > 0:
		p.Media = append(p.Media, rec.Metadata.Media...)
	}

	p.Author = author(rec, p.SourceURL)
	return p
}

func author(rec backend.RawRecord, permalink string) models.Author {
	meta := rec.Metadata.Author
	a := models.Author{
		ID:            firstNonEmpty(rec.AuthorID, meta.ID),
		Handle:        strings.TrimPrefix(firstNonEmpty(rec.Username, meta.Username), "@"),
		Name:          firstNonEmpty(rec.Name, meta.Name),
		AvatarURL:     firstNonEmpty(rec.ProfileImage, meta.ProfileImage),
		Verified:      bool(rec.Verified) || bool(meta.Verified),
		FollowerCount: firstPositive(rec.FollowersCount, meta.FollowersCount),
	}

	if a.Handle == "" {
		a.Handle = HandleFromURL(permalink)
	}
	if a.Name == "" {
		a.Name = a.Handle
	}
	return a
}

// HandleFromURL extracts the account handle from a post permalink of the
// form domain/<handle>/... . It returns "" when nothing matches.
func HandleFromURL(permalink string) string {
	m := rePermalink.FindStringSubmatch(strings.TrimSpace(permalink))
	if m == nil || reservedSegments[strings.ToLower(m[1])] {
		return ""
	}
	return m[1]
}

// Sentiment canonicalizes a backend sentiment label. Anything other than
// positive or negative is neutral.
func Sentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case models.SentimentPositive:
		return models.SentimentPositive
	case models.SentimentNegative:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// ParseTimestamp accepts the timestamp formats the backend has been seen to
// emit, plus unix seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...backend.FlexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(values ...backend.FlexInt) int {
	for _, v := range values {
		if v > 0 {
			return int(v)
		}
	}
	return 0
}
