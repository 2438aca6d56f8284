package dto

// QuestionAttributes represents question request attributes in JSON:API
// format.
type QuestionAttributes struct {
	Question string `json:"question"`
}

// QuestionData represents question request data in JSON:API format.
type QuestionData struct {
	Type       string             `json:"type"`
	Attributes QuestionAttributes `json:"attributes"`
}

// QuestionRequest represents a JSON:API question request.
type QuestionRequest struct {
	Data QuestionData `json:"data"`
}
