package extract

import (
	"encoding/json"
	"strconv"
)

// Mention is one entity span proposed by the extraction oracle. On the wire
// it is either a bare string or an object {"text": ..., "score": ...}; both
// shapes decode into this one type so nothing downstream branches on shape.
// Score is nil when the oracle attached no confidence.
type Mention struct {
	Text  string   `json:"text"`
	Score *float64 `json:"score,omitempty"`
}

// UnmarshalJSON accepts a bare string, a mention object, or a bare number
// (coerced to its string form). Anything else decodes to an empty mention,
// which downstream code drops as an empty endpoint — malformed oracle output
// is discarded silently, never fatal.
func (m *Mention) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = s
		m.Score = nil
		return nil
	}

	type mentionObj struct {
		Text  string   `json:"text"`
		Score *float64 `json:"score"`
	}
	var obj mentionObj
	if err := json.Unmarshal(data, &obj); err == nil {
		m.Text = obj.Text
		m.Score = obj.Score
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		m.Text = n.String()
		m.Score = nil
		return nil
	}

	*m = Mention{}
	return nil
}

// RawPair is one proposed (source, target) relation pair. Arity is preserved
// as-decoded so the reconciler can reject pairs that are not exactly two
// endpoints.
type RawPair []Mention

// UnmarshalJSON decodes a JSON array of mentions. Non-array input yields an
// empty pair (wrong arity, dropped later) rather than an error.
func (p *RawPair) UnmarshalJSON(data []byte) error {
	var mentions []Mention
	if err := json.Unmarshal(data, &mentions); err != nil {
		*p = nil
		return nil
	}
	*p = mentions
	return nil
}

// RawResult is the extraction oracle's untrusted output for one card.
type RawResult struct {
	Entities  map[string][]Mention `json:"entities"`
	Relations map[string][]RawPair `json:"relations"`
}

// scoreString formats a confidence score the way it appears in warnings.
func scoreString(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
