package judge0

import (
	"bytes"
	"encoding/json"

	"github.com/anheplast/curiosmaze/internal/domain/model"
)

// BatchItem is the judge's answer for one element of a batch submission:
// either a token or a validation error for that element.
type BatchItem struct {
	Token string
	Error string
}

func (b *BatchItem) UnmarshalJSON(data []byte) error {
	*b = BatchItem{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		b.Error = "empty batch item"
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["token"]; ok {
		var token string
		if err := json.Unmarshal(raw, &token); err == nil && token != "" {
			b.Token = token
			return nil
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		b.Error = string(data)
		return nil
	}
	b.Error = compact.String()
	return nil
}

func (b BatchItem) MarshalJSON() ([]byte, error) {
	if b.Token != "" {
		return json.Marshal(map[string]string{"token": b.Token})
	}
	return json.Marshal(map[string]string{"error": b.Error})
}

// Tokens returns the tokens of the accepted items, in order.
func Tokens(items []BatchItem) []string {
	tokens := make([]string, 0, len(items))
	for _, it := range items {
		if it.Token != "" {
			tokens = append(tokens, it.Token)
		}
	}
	return tokens
}

type Language struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Availability is the outcome of a liveness probe.
type Availability struct {
	IsAvailable bool       `json:"is_available"`
	Message     string     `json:"message"`
	Languages   []Language `json:"languages,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type batchRequest struct {
	Submissions []model.Submission `json:"submissions"`
}

type batchResultsResponse struct {
	Submissions *[]model.SubmissionResult `json:"submissions"`
}
