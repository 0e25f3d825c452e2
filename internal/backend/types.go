package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Search job statuses reported by the backend.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

type createSearchQueryRequest struct {
	Query      string           `json:"query"`
	SearchType string           `json:"search_type"`
	Parameters searchParameters `json:"parameters"`
	Status     string           `json:"status"`
}

type searchParameters struct {
	MaxItems int    `json:"maxItems"`
	Sort     string `json:"sort"`
}

// SearchQuery is the backend's view of a search job.
type SearchQuery struct {
	ID     FlexString `json:"id"`
	Query  FlexString `json:"query"`
	Status FlexString `json:"status"`
}

// AnalysisResponse is the payload returned by analyze_tweets and stored under
// /analysis/. Every field is optional; decoding never fails on a field of the
// wrong shape, it just leaves the zero value.
type AnalysisResponse struct {
	SentimentCounts  map[string]FlexInt
	Themes           TextList
	ExpertInsights   TextList
	DetailedAnalysis []json.RawMessage
	Percentages      map[string]float64
	CreatedAt        string
	Status           string
}

// UnmarshalJSON decodes each known field independently so one malformed
// field cannot reject the whole payload.
func (a *AnalysisResponse) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	lenient(fields["sentiment_counts"], &a.SentimentCounts)
	lenient(fields["themes"], &a.Themes)
	lenient(fields["expert_insights"], &a.ExpertInsights)
	lenient(fields["detailed_analysis"], &a.DetailedAnalysis)

	var pct map[string]FlexFloat
	lenient(fields["percentages"], &pct)
	if len(pct) > 0 {
		a.Percentages = make(map[string]float64, len(pct))
		for k, v := range pct {
			a.Percentages[k] = float64(v)
		}
	}

	var createdAt, status FlexString
	lenient(fields["created_at"], &createdAt)
	lenient(fields["status"], &status)
	a.CreatedAt = string(createdAt)
	a.Status = string(status)
	return nil
}

// RawRecord is one entry of detailed_analysis or /tweets/. Any field may be
// missing; structured author fields may be absent entirely, in which case the
// permalink is the only source of the handle.
type RawRecord struct {
	ID        FlexString `json:"id"`
	TweetID   FlexString `json:"tweet_id"`
	Text      FlexString `json:"text"`
	Content   FlexString `json:"content"`
	Sentiment FlexString `json:"sentiment"`
	CreatedAt FlexString `json:"created_at"`
	Timestamp FlexString `json:"timestamp"`
	TweetURL  FlexString `json:"tweet_url"`

	AuthorID       FlexString `json:"author_id"`
	Username       FlexString `json:"username"`
	Name           FlexString `json:"name"`
	ProfileImage   FlexString `json:"profile_image_url"`
	Verified       FlexBool   `json:"verified"`
	FollowersCount FlexInt    `json:"followers_count"`

	Likes    FlexInt   `json:"likes"`
	Retweets FlexInt   `json:"retweets"`
	Replies  FlexInt   `json:"replies"`
	Quotes   FlexInt   `json:"quotes"`
	Media    MediaList `json:"media"`

	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata is the nested metadata block some records carry.
type RecordMetadata struct {
	TweetURL  FlexString   `json:"tweet_url"`
	CreatedAt FlexString   `json:"created_at"`
	Likes     FlexInt      `json:"likes"`
	Retweets  FlexInt      `json:"retweets"`
	Replies   FlexInt      `json:"replies"`
	Quotes    FlexInt      `json:"quotes"`
	Media     MediaList    `json:"media"`
	Author    RecordAuthor `json:"author"`
}

// RecordAuthor is the structured author block inside metadata.
type RecordAuthor struct {
	ID             FlexString `json:"id"`
	Username       FlexString `json:"username"`
	Name           FlexString `json:"name"`
	ProfileImage   FlexString `json:"profile_image_url"`
	Verified       FlexBool   `json:"verified"`
	FollowersCount FlexInt    `json:"followers_count"`
}

// UnmarshalJSON tolerates metadata that is not an object.
func (m *RecordMetadata) UnmarshalJSON(data []byte) error {
	type plain RecordMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*m = RecordMetadata(p)
	}
	return nil
}

// UnmarshalJSON tolerates an author that is not an object.
func (a *RecordAuthor) UnmarshalJSON(data []byte) error {
	type plain RecordAuthor
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*a = RecordAuthor(p)
	}
	return nil
}

// --- lenient scalar types ---

// FlexString accepts a JSON string, number or bool. Anything else decodes to "".
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = FlexString(num.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = FlexString(strconv.FormatBool(b))
		return nil
	}
	*s = ""
	return nil
}

// FlexInt accepts a JSON number or a numeric string. Anything else decodes to 0.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	*n = FlexInt(FlexFloatFrom(data))
	return nil
}

// FlexFloat accepts a JSON number or a numeric string. Anything else decodes to 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat(FlexFloatFrom(data))
	return nil
}

// FlexFloatFrom parses a JSON number or numeric string, returning 0 on failure.
func FlexFloatFrom(data []byte) float64 {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return parsed
		}
	}
	return 0
}

// FlexBool accepts a JSON bool, "true"/"false" strings, or numbers.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, _ := strconv.ParseBool(strings.TrimSpace(str))
		*b = FlexBool(parsed)
		return nil
	}
	*b = FlexBool(FlexFloatFrom(data) != 0)
	return nil
}

// TextList accepts a single string or a list; non-string list elements are
// dropped.
type TextList []string

func (t *TextList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*t = TextList{single}
		} else {
			*t = nil
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*t = nil
		return nil
	}
	out := make(TextList, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil && s != "" {
			out = append(out, s)
		}
	}
	*t = out
	return nil
}

// MediaList accepts a list of URLs or a list of media objects carrying one of
// url, media_url_https, media_url or preview_image_url.
type MediaList []string

func (m *MediaList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*m = nil
		return nil
	}
	out := make(MediaList, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			URL        FlexString `json:"url"`
			HTTPS      FlexString `json:"media_url_https"`
			MediaURL   FlexString `json:"media_url"`
			PreviewURL FlexString `json:"preview_image_url"`
		}
		if json.Unmarshal(item, &obj) != nil {
			continue
		}
		for _, candidate := range []FlexString{obj.URL, obj.HTTPS, obj.MediaURL, obj.PreviewURL} {
			if candidate != "" {
				out = append(out, string(candidate))
				break
			}
		}
	}
	*m = out
	return nil
}

// lenient decodes raw into dst, ignoring absent fields and decode errors.
func lenient(raw json.RawMessage, dst any) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// listItems extracts the item list from either a bare JSON array or a
// paginated {"results": [...]} envelope.
func listItems(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, err
		}
		return page.Results, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}
