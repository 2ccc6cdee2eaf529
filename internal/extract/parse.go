package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a float that may be missing. Values the agent returns that are
// not numeric become missing instead of failing the chunk.
type Number struct {
	Value float64
	Valid bool
}

// ParseNumber coerces s to a Number. NaN and infinities count as missing.
func ParseNumber(s string) Number {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}
	}
	return Number{Value: f, Valid: true}
}

func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Term is one extracted payment term.
type Term struct {
	Description string `json:"description"`
	Term        Number `json:"term"`
	Cliff       Number `json:"cliff"`
}

// ParseReply reads "description | term | cliff" lines. Lines that do not
// split into exactly three fields are skipped.
func ParseReply(text string) []Term {
	var terms []Term
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		terms = append(terms, Term{
			Description: strings.TrimSpace(parts[0]),
			Term:        ParseNumber(parts[1]),
			Cliff:       ParseNumber(parts[2]),
		})
	}
	return terms
}
