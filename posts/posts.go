package posts

// Resource is the cache resource name for post listings.
const Resource = "posts"

// Post is a news article shown in the posts feed.
type Post struct {
	ID             string   `json:"_id" yaml:"id"`
	ArticleID      string   `json:"article_id" yaml:"article_id"`
	Title          string   `json:"title" yaml:"title"`
	Link           string   `json:"link" yaml:"link"`
	Keywords       []string `json:"keywords" yaml:"keywords,omitempty"`
	Creator        []string `json:"creator" yaml:"creator,omitempty"`
	VideoURL       *string  `json:"video_url" yaml:"video_url,omitempty"`
	Description    string   `json:"description" yaml:"description"`
	Content        string   `json:"content" yaml:"-"`
	PubDate        string   `json:"pubDate" yaml:"pub_date"`
	ImageURL       string   `json:"image_url" yaml:"image_url,omitempty"`
	SourceID       string   `json:"source_id" yaml:"source_id"`
	SourcePriority int      `json:"source_priority" yaml:"-"`
	SourceURL      string   `json:"source_url" yaml:"source_url,omitempty"`
	SourceIcon     *string  `json:"source_icon" yaml:"-"`
	Language       string   `json:"language" yaml:"language"`
	Country        []string `json:"country" yaml:"country,omitempty"`
	Category       []string `json:"category" yaml:"category,omitempty"`
	AITag          string   `json:"ai_tag" yaml:"-"`
	Sentiment      string   `json:"sentiment" yaml:"sentiment,omitempty"`
	SentimentStats string   `json:"sentiment_stats" yaml:"-"`
	AIRegion       string   `json:"ai_region" yaml:"-"`
}

// ID returns the identity key used to de-duplicate the feed.
func ID(p Post) string {
	return p.ID
}
