package model

// ResponseTone selects the register of a generated reply.
type ResponseTone string

const (
	ToneFormal   ResponseTone = "formal"
	ToneFriendly ResponseTone = "friendly"
	ToneQuick    ResponseTone = "quick"
	ToneDetailed ResponseTone = "detailed"
)

// ResponseTones lists the accepted tones in display order.
var ResponseTones = []ResponseTone{ToneFormal, ToneFriendly, ToneQuick, ToneDetailed}

// Valid reports whether t is one of the accepted tones.
func (t ResponseTone) Valid() bool {
	for _, known := range ResponseTones {
		if t == known {
			return true
		}
	}
	return false
}

// AI result types.
const (
	ResultImprovement = "improvement"
	ResultResponse    = "response"
)

// AIResult is the terminal payload of a streamed assistant request.
type AIResult struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Sentiment values reported by tone analysis.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ToneAnalysis is the structured result of analyzing a draft.
type ToneAnalysis struct {
	OverallTone          string   `json:"overallTone"`
	ProfessionalismScore int      `json:"professionalismScore"`
	Sentiment            string   `json:"sentiment"`
	Strengths            []string `json:"strengths"`
	Improvements         []string `json:"improvements"`
}
