package tfidf

import (
	"errors"
	"strings"

	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

// ErrMalformedDocument is returned for input lines without a document identifier
var ErrMalformedDocument = errors.New("malformed document")

const one = "1"

type emitFunc func(key, value string) error

// termEmitter is the map stage. Each input line is a document of the form
// "docID token token ...".
type termEmitter struct{}

func (termEmitter) Map(key, value string, emitter mr.Emitter) error {
	return emitTerms(value, emitter.Emit)
}

// emitTerms emits a count of one for every term occurrence in document, and
// one document frequency record for every distinct term.
func emitTerms(document string, emit emitFunc) error {
	fields := strings.Fields(document)
	if len(fields) == 0 {
		return ErrMalformedDocument
	}
	docID, tokens := fields[0], fields[1:]

	seen := make(map[string]struct{}, len(tokens))
	distinct := make([]string, 0, len(tokens))
	for _, token := range tokens {
		term := strings.ToLower(token)
		key := CompositeKey{Term: term, Marker: DocumentEntry(docID)}
		if err := emit(key.Encode(), one); err != nil {
			return err
		}
		if _, ok := seen[term]; !ok {
			seen[term] = struct{}{}
			distinct = append(distinct, term)
		}
	}

	for _, term := range distinct {
		key := CompositeKey{Term: term, Marker: DocumentFrequencyMarker}
		if err := emit(key.Encode(), one); err != nil {
			return err
		}
	}
	return nil
}
