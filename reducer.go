package tfidf

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

// Errors reported by the weight reducer
var (
	ErrMissingDocumentFrequency = errors.New("missing document frequency")
	ErrNumDocs                  = errors.New("invalid document count")

	errGroupingFault = errors.New("records of several terms in one group")
)

// NumDocKey is the job configuration entry holding the corpus size.
const NumDocKey = "NumDoc"

func parseNumDocs(conf map[string]string) (int64, error) {
	value, ok := conf[NumDocKey]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not set", ErrNumDocs, NumDocKey)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s=%q", ErrNumDocs, NumDocKey, value)
	}
	return n, nil
}

// documentFrequencyState tracks the term a group is reducing and, once the
// document frequency records have been consumed, its document frequency.
type documentFrequencyState struct {
	term string
	df   int64
}

func (s documentFrequencyState) known() bool {
	return s.df > 0
}

// weightReducer is the reduce stage. It is handed every record of a term in
// one group, document frequency records first.
type weightReducer struct {
	numDocs int64
}

func (r *weightReducer) Configure(conf map[string]string) error {
	n, err := parseNumDocs(conf)
	if err != nil {
		return err
	}
	r.numDocs = n
	return nil
}

func (r *weightReducer) Reduce(key string, values mr.ValueIterator, emitter mr.Emitter) error {
	records := make([]mr.KeyValue, 0, values.Len())
	for kv := range values.Records() {
		records = append(records, kv)
	}
	return reduceTerm(records, r.numDocs, emitter.Emit)
}

// reduceTerm computes the weights of one term group. records must be sorted
// by SortCompare.
func reduceTerm(records []mr.KeyValue, numDocs int64, emit emitFunc) error {
	if numDocs < 1 {
		return fmt.Errorf("%w: %d", ErrNumDocs, numDocs)
	}

	var state documentFrequencyState
	for start := 0; start < len(records); {
		key, err := DecodeKey(records[start].Key)
		if err != nil {
			return err
		}

		// Records with an identical key are summed together
		counts := []string{records[start].Value}
		end := start + 1
		for ; end < len(records) && records[end].Key == records[start].Key; end++ {
			counts = append(counts, records[end].Value)
		}
		start = end

		if state.term == "" {
			state.term = key.Term
		} else if key.Term != state.term {
			return fmt.Errorf("%w: %q and %q", errGroupingFault, state.term, key.Term)
		}

		sum, err := sumCounts(counts)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		if key.Marker.IsDocumentFrequency() {
			if state.known() {
				return fmt.Errorf("%w: second document frequency group for %q", ErrMissingDocumentFrequency, key.Term)
			}
			state.df = sum
			continue
		}

		if !state.known() {
			return fmt.Errorf("%w: %s", ErrMissingDocumentFrequency, key)
		}
		record := OutputRecord{
			Term:   key.Term,
			DocID:  key.Marker.DocID(),
			Weight: weight(sum, state.df, numDocs),
		}
		if err := emit(record.Term, record.value()); err != nil {
			return err
		}
	}
	return nil
}

// weight is tf * log10(N/df).
func weight(tf, df, numDocs int64) float64 {
	idf := math.Log10(float64(numDocs) / float64(df))
	return float64(tf) * idf
}
