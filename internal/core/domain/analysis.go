package domain

import "time"

// AnalysisRequest is the immutable per-run value shared by every stage.
type AnalysisRequest struct {
	Image           []byte
	Fingerprint     string
	Cultures        []string
	Mode            ContextMode
	JudgmentModel   string
	JudgmentTag     string
	RequestedSessID string
	ReceivedAt      time.Time
}

type PageSummary struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

type AnalysisResult struct {
	Scores        []ScoreRecord `json:"scores"`
	Pages         []PageSummary `json:"wikipedia_pages"`
	MatchedEntity string        `json:"matched_entity"`
	SessionID     string        `json:"session_id"`
	CacheHit      bool          `json:"cache_hit"`
}

// AnalysisJob is a queued batch request referring to an image in object storage.
type AnalysisJob struct {
	ImageKey      string   `json:"image_key"`
	Cultures      []string `json:"cultures"`
	ListName      string   `json:"list_name,omitempty"`
	MultiContext  bool     `json:"use_multiple_wiki_pages"`
	JudgmentModel string   `json:"model_name"`
	SessionID     string   `json:"session_id,omitempty"`
}
