package tfidf

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatWeight(t *testing.T) {
	assert.Equal(t, "0", FormatWeight(0))
	assert.Equal(t, "0.5", FormatWeight(0.5))
	assert.Equal(t, "0.3010299956639812", FormatWeight(0.3010299956639812))
}

func TestOutputRecordString(t *testing.T) {
	record := OutputRecord{Term: "cat", DocID: "doc1", Weight: 1.25}
	assert.Equal(t, "cat\tdoc1,1.25", record.String())
}

func TestParseOutputRecord(t *testing.T) {
	record, err := ParseOutputRecord("fish\tdoc,2,0.125")
	require.Nil(t, err)
	assert.Equal(t, OutputRecord{Term: "fish", DocID: "doc,2", Weight: 0.125}, record)

	for _, line := range []string{"fish", "fish\tdoc2", "fish\tdoc2,heavy"} {
		_, err := ParseOutputRecord(line)
		assert.NotNil(t, err, "line %q", line)
	}
}

func TestReadOutput(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "output-part-0"), []byte("dog\td2,0\ncat\td1,0.5\n"), 0644))
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "output-part-1"), []byte("cat\td0,1\n"), 0644))
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "map-bin0-0.out"), []byte("{}\n"), 0644))

	records, err := ReadOutput(dir)
	require.Nil(t, err)
	assert.Equal(t, []OutputRecord{
		{Term: "cat", DocID: "d0", Weight: 1},
		{Term: "cat", DocID: "d1", Weight: 0.5},
		{Term: "dog", DocID: "d2", Weight: 0},
	}, records)
}

func TestReadOutputMalformed(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "output-part-0"), []byte("garbage\n"), 0644))

	_, err := ReadOutput(dir)
	assert.NotNil(t, err)
}
