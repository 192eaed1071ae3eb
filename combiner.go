package tfidf

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

// ErrInvalidCount is returned for intermediate values that are not positive integers
var ErrInvalidCount = errors.New("invalid count")

func parseCount(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, value)
	}
	return n, nil
}

// sumCounts adds up the counts of records sharing one key.
func sumCounts(values []string) (int64, error) {
	var sum int64
	for _, v := range values {
		n, err := parseCount(v)
		if err != nil {
			return 0, err
		}
		sum += n
	}
	return sum, nil
}

// countCombiner pre-aggregates the counts of identical keys within a map task.
type countCombiner struct{}

func (countCombiner) Combine(key string, values mr.ValueIterator, emitter mr.Emitter) error {
	counts := make([]string, 0, values.Len())
	for v := range values.Iter() {
		counts = append(counts, v)
	}
	sum, err := sumCounts(counts)
	if err != nil {
		return err
	}
	return emitter.Emit(key, strconv.FormatInt(sum, 10))
}
