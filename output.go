package tfidf

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
)

// OutputRecord is the weight of one term in one document.
type OutputRecord struct {
	Term   string
	DocID  string
	Weight float64
}

// FormatWeight renders w as the shortest decimal that parses back to w.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func (r OutputRecord) value() string {
	return r.DocID + "," + FormatWeight(r.Weight)
}

// String renders r as an output line, without the trailing newline.
func (r OutputRecord) String() string {
	return r.Term + "\t" + r.value()
}

// ParseOutputRecord parses a line written by the weight reducer.
func ParseOutputRecord(line string) (OutputRecord, error) {
	tab := strings.Index(line, "\t")
	if tab < 0 {
		return OutputRecord{}, fmt.Errorf("malformed output line %q", line)
	}
	term, value := line[:tab], line[tab+1:]

	comma := strings.LastIndex(value, ",")
	if comma < 0 {
		return OutputRecord{}, fmt.Errorf("malformed output line %q", line)
	}
	w, err := strconv.ParseFloat(value[comma+1:], 64)
	if err != nil {
		return OutputRecord{}, fmt.Errorf("malformed weight in %q: %w", line, err)
	}
	return OutputRecord{Term: term, DocID: value[:comma], Weight: w}, nil
}

// ReadOutput parses every output part written to location. Records are
// sorted by term, then document.
func ReadOutput(location string) ([]OutputRecord, error) {
	fs := corfs.InferFilesystem(location)
	parts, err := fs.ListFiles(fs.Join(location, "output-part-*"))
	if err != nil {
		return nil, err
	}

	records := make([]OutputRecord, 0)
	for _, part := range parts {
		partRecords, err := readOutputPart(fs, part.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, partRecords...)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Term != records[j].Term {
			return records[i].Term < records[j].Term
		}
		return records[i].DocID < records[j].DocID
	})
	return records, nil
}

func readOutputPart(fs corfs.FileSystem, name string) ([]OutputRecord, error) {
	reader, err := fs.OpenReader(name, 0)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	records := make([]OutputRecord, 0)
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		record, err := ParseOutputRecord(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, record)
	}
	return records, scanner.Err()
}
