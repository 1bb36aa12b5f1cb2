// Package normalize はプラットフォーム固有のJSONペイロードを共通のListItemに変換する。
// すべての関数は副作用を持たない。
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/kolboard/internal/model"
)

// ErrMissingName は表示名を決定できないペイロードであることを示す。
var ErrMissingName = errors.New("payload has no display name")

// count は数値と数値文字列の両方を受け付ける（YouTubeの統計値は文字列で返る）。
type count float64

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", s, err)
	}
	*c = count(v)
	return nil
}

type redditCreator struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IconImg     string `json:"icon_img"`
	TotalKarma  count  `json:"total_karma"`
	Subscribers count  `json:"subscribers"`
	Posts       count  `json:"posts"`
	Engagement  count  `json:"engagement"`
}

type xCreator struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount count `json:"followers_count"`
		TweetCount     count `json:"tweet_count"`
		LikeCount      count `json:"like_count"`
	} `json:"public_metrics"`
}

type youtubeCreator struct {
	ID      string `json:"id"`
	Snippet struct {
		Title      string `json:"title"`
		Thumbnails struct {
			Default struct {
				URL string `json:"url"`
			} `json:"default"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount count `json:"subscriberCount"`
		VideoCount      count `json:"videoCount"`
		ViewCount       count `json:"viewCount"`
	} `json:"statistics"`
}

type tickerPayload struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Logo      string `json:"logo"`
	Mentions  count  `json:"mentions"`
	Sentiment count  `json:"sentiment"`
}

type topicPayload struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	Mentions count  `json:"mentions"`
}

// Creator はクリエイター行をListItemに変換する。
// IDはペイロード内のプラットフォーム固有IDを優先し、なければ外部ID、行IDの順に使う。
func Creator(row model.SourceRow) (model.ListItem, error) {
	var (
		item model.ListItem
		err  error
	)

	switch row.Platform {
	case model.PlatformReddit:
		var p redditCreator
		if err = json.Unmarshal(row.Raw, &p); err != nil {
			break
		}
		item = model.ListItem{
			ID:     firstNonEmpty(p.ID, p.Name),
			Name:   p.Name,
			Avatar: cleanRedditIcon(p.IconImg),
			Metrics: map[string]float64{
				// redditはフォロワー数の代わりにカルマを指標とする
				"followers":  float64(max(p.Subscribers, p.TotalKarma)),
				"karma":      float64(p.TotalKarma),
				"posts":      float64(p.Posts),
				"engagement": float64(p.Engagement),
			},
		}
	case model.PlatformX:
		var p xCreator
		if err = json.Unmarshal(row.Raw, &p); err != nil {
			break
		}
		item = model.ListItem{
			ID:     p.ID,
			Name:   firstNonEmpty(p.Name, p.Username),
			Avatar: p.ProfileImageURL,
			Metrics: map[string]float64{
				"followers":  float64(p.PublicMetrics.FollowersCount),
				"posts":      float64(p.PublicMetrics.TweetCount),
				"engagement": float64(p.PublicMetrics.LikeCount),
			},
		}
	case model.PlatformYouTube:
		var p youtubeCreator
		if err = json.Unmarshal(row.Raw, &p); err != nil {
			break
		}
		item = model.ListItem{
			ID:     p.ID,
			Name:   p.Snippet.Title,
			Avatar: p.Snippet.Thumbnails.Default.URL,
			Metrics: map[string]float64{
				"followers":  float64(p.Statistics.SubscriberCount),
				"posts":      float64(p.Statistics.VideoCount),
				"engagement": float64(p.Statistics.ViewCount),
			},
		}
	default:
		return model.ListItem{}, fmt.Errorf("unsupported platform %q", row.Platform)
	}

	if err != nil {
		return model.ListItem{}, fmt.Errorf("failed to decode %s creator %s: %w", row.Platform, row.ID, err)
	}
	return finish(item, row)
}

// Ticker は銘柄行をListItemに変換する。Xのキャッシュタグ（$NVDA）は記号を除去する。
func Ticker(row model.SourceRow) (model.ListItem, error) {
	var p tickerPayload
	if err := json.Unmarshal(row.Raw, &p); err != nil {
		return model.ListItem{}, fmt.Errorf("failed to decode %s ticker %s: %w", row.Platform, row.ID, err)
	}

	symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(p.Symbol), "$"))
	item := model.ListItem{
		ID:     symbol,
		Name:   firstNonEmpty(symbol, p.Name),
		Avatar: p.Logo,
		Metrics: map[string]float64{
			"mentions":  float64(p.Mentions),
			"sentiment": float64(p.Sentiment),
		},
	}
	return finish(item, row)
}

// Topic はトピック行をListItemに変換する。
func Topic(row model.SourceRow) (model.ListItem, error) {
	var p topicPayload
	if err := json.Unmarshal(row.Raw, &p); err != nil {
		return model.ListItem{}, fmt.Errorf("failed to decode %s topic %s: %w", row.Platform, row.ID, err)
	}

	name := strings.TrimSpace(firstNonEmpty(p.Topic, p.Title))
	item := model.ListItem{
		ID:     p.ID,
		Name:   name,
		Avatar: p.Image,
		Metrics: map[string]float64{
			"mentions": float64(p.Mentions),
		},
	}
	return finish(item, row)
}

// finish は共通項目を補完する。
func finish(item model.ListItem, row model.SourceRow) (model.ListItem, error) {
	if item.Name == "" {
		return model.ListItem{}, fmt.Errorf("%s row %s: %w", row.Platform, row.ID, ErrMissingName)
	}
	if item.ID == "" {
		item.ID = firstNonEmpty(row.ExternalID, row.ID)
	}
	item.Platform = row.Platform
	item.Raw = row.Raw
	return item, nil
}

// cleanRedditIcon はredditのアイコンURLに付くHTMLエスケープとクエリを除去する。
func cleanRedditIcon(raw string) string {
	u := strings.ReplaceAll(raw, "&amp;", "&")
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return u
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
