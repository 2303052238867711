// Package vectorenc converts embedding vectors to and from the textual
// form they are persisted in. The encoding is one decimal token per
// dimension separated by commas, produced with the shortest
// representation that round-trips IEEE-754 doubles exactly, so
// Decode(Encode(v)) == v for any finite vector and the output never
// depends on locale.
package vectorenc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when persisted embedding text cannot be
// decoded into a numeric vector.
var ErrMalformed = errors.New("malformed embedding text")

const separator = ","

// Encode converts a vector to its persisted textual form.
// Encoding a nil or empty vector yields the empty string, which Decode
// rejects; callers treat such rows as having no embedding.
func Encode(vector []float64) string {
	if len(vector) == 0 {
		return ""
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, separator)
}

// Decode converts persisted embedding text back to a vector. It fails
// with ErrMalformed on empty input or any token that is not a valid
// float, so callers can treat a corrupt row as "no embedding" instead
// of aborting a batch.
func Decode(text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrMalformed)
	}

	parts := strings.Split(text, separator)
	vector := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d: %q", ErrMalformed, i, part)
		}
		vector[i] = v
	}
	return vector, nil
}
