package mr

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
	log "github.com/sirupsen/logrus"
)

// Upper bound on the length of a single input line
const maxLineSize = 64 * 1024 * 1024

// PrepareFunc runs on the driver before the map phase. The returned entries
// are merged into the job configuration handed to every task.
type PrepareFunc func(ctx context.Context, fs corfs.FileSystem, inputs []string) (map[string]string, error)

// Job is the logical container for data that is needed by Mappers and Reducers
type Job struct {
	Map     Mapper
	Reduce  Reducer
	Combine Combiner // optional

	// Partition routes map output keys to reduce bins. Defaults to HashPartition.
	Partition PartitionFunc
	// SortCompare orders the records of a reduce bin. Defaults to byte order.
	SortCompare CompareFunc
	// GroupCompare decides which adjacent sorted records share a Reduce call.
	// It must never split records that SortCompare considers equal.
	// Defaults to exact key equality.
	GroupCompare CompareFunc
	// Prepare is an optional driver-side pre-pass.
	Prepare PrepareFunc

	fileSystem       corfs.FileSystem
	config           *config
	intermediateBins uint
	outputPath       string
	conf             map[string]string

	bytesRead    int64
	bytesWritten int64
}

// NewJob creates a new job from a Mapper and a Reducer.
func NewJob(mapper Mapper, reducer Reducer) *Job {
	return &Job{
		Map:    mapper,
		Reduce: reducer,
		conf:   make(map[string]string),
	}
}

// Conf returns a copy of the job configuration
func (j *Job) Conf() map[string]string {
	c := make(map[string]string, len(j.conf))
	for k, v := range j.conf {
		c[k] = v
	}
	return c
}

// setConf merges conf into the job configuration and hands the result to
// every Configurable stage of the job.
func (j *Job) setConf(conf map[string]string) error {
	if j.conf == nil {
		j.conf = make(map[string]string)
	}
	for k, v := range conf {
		j.conf[k] = v
	}

	for _, stage := range []interface{}{j.Map, j.Combine, j.Reduce} {
		if c, ok := stage.(Configurable); ok {
			if err := c.Configure(j.Conf()); err != nil {
				return fmt.Errorf("configuring %T: %w", stage, err)
			}
		}
	}
	return nil
}

func (j *Job) sortCompare() CompareFunc {
	if j.SortCompare != nil {
		return j.SortCompare
	}
	return byteOrder
}

func (j *Job) groupCompare() CompareFunc {
	if j.GroupCompare != nil {
		return j.GroupCompare
	}
	return byteOrder
}

// runMapper maps the given splits, writing partitioned output to shuffle bins.
func (j *Job) runMapper(mapperID uint, splits []inputSplit) error {
	emitter := newMapperEmitter(j.intermediateBins, mapperID, j.outputPath, j.fileSystem)
	if j.Partition != nil {
		emitter.partitionFunc = j.Partition
	}
	if j.Combine != nil && j.config.Combine {
		emitter.combiner = j.Combine
		emitter.maxBuffered = j.config.CombineBuffer
	}

	for _, split := range splits {
		if err := j.runMapperSplit(split, &emitter); err != nil {
			emitter.close()
			return err
		}
	}

	err := emitter.close()
	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	return err
}

// runMapperSplit feeds every line owned by split to the Mapper.
func (j *Job) runMapperSplit(split inputSplit, emitter Emitter) error {
	offset := split.StartOffset
	if split.StartOffset != 0 {
		// Back up one byte to learn whether split begins on a line boundary
		offset--
	}

	inputSource, err := j.fileSystem.OpenReader(split.Filename, offset)
	if err != nil {
		return err
	}
	defer inputSource.Close()

	var bytesRead int64
	scanner := bufio.NewScanner(inputSource)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(countingSplitFunc(bufio.ScanLines, &bytesRead))

	if split.StartOffset != 0 {
		// The (possibly empty) remainder of the previous line belongs to the previous split
		scanner.Scan()
	}

	for {
		lineStart := offset + bytesRead
		if lineStart > split.EndOffset || !scanner.Scan() {
			break
		}
		if err := j.Map.Map("", scanner.Text(), emitter); err != nil {
			return fmt.Errorf("%s at byte %d: %w", split.Filename, lineStart, err)
		}
	}

	atomic.AddInt64(&j.bytesRead, bytesRead)
	return scanner.Err()
}

func (j *Job) readIntermediateFile(file corfs.FileInfo) ([]KeyValue, error) {
	reader, err := j.fileSystem.OpenReader(file.Name, 0)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	records := make([]KeyValue, 0)
	decoder := json.NewDecoder(reader)
	for decoder.More() {
		var kv KeyValue
		if err := decoder.Decode(&kv); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", file.Name, err)
		}
		records = append(records, kv)
	}
	atomic.AddInt64(&j.bytesRead, file.Size)
	return records, nil
}

// runReducer sorts the shuffle data of one bin and reduces it group by group.
// Groups are processed sequentially in sort order.
func (j *Job) runReducer(binID uint) error {
	// Determine the intermediate data files this reducer is responsible for
	pattern := j.fileSystem.Join(j.outputPath, fmt.Sprintf("map-bin%d-*.out", binID))
	files, err := j.fileSystem.ListFiles(pattern)
	if err != nil {
		return err
	}

	records := make([]KeyValue, 0)
	for _, file := range files {
		log.Debugf("Reducing on intermediate file: %s", file.Name)
		fileRecords, err := j.readIntermediateFile(file)
		if err != nil {
			return err
		}
		records = append(records, fileRecords...)
	}

	sortCompare := j.sortCompare()
	sort.SliceStable(records, func(a, b int) bool {
		return sortCompare(records[a].Key, records[b].Key) < 0
	})

	// Open emitter for output data
	emitWriter, err := j.fileSystem.OpenWriter(j.fileSystem.Join(j.outputPath, fmt.Sprintf("output-part-%d", binID)))
	if err != nil {
		return err
	}
	emitter := newReducerEmitter(emitWriter)

	groupCompare := j.groupCompare()
	for start := 0; start < len(records); {
		end := start + 1
		for end < len(records) && groupCompare(records[start].Key, records[end].Key) == 0 {
			end++
		}

		if err := j.Reduce.Reduce(records[start].Key, newValueIterator(records[start:end]), emitter); err != nil {
			emitter.close()
			return fmt.Errorf("reducing group %q in bin %d: %w", records[start].Key, binID, err)
		}
		start = end
	}

	err = emitter.close()
	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	return err
}

// removeFiles deletes every file in the working location matching pattern.
func (j *Job) removeFiles(pattern string) (int, error) {
	files, err := j.fileSystem.ListFiles(j.fileSystem.Join(j.outputPath, pattern))
	if err != nil {
		return 0, err
	}
	for _, file := range files {
		if err := j.fileSystem.Delete(file.Name); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

// cleanupIntermediate removes all shuffle files written by the map phase.
func (j *Job) cleanupIntermediate() error {
	n, err := j.removeFiles("map-bin*.out")
	if err != nil {
		return err
	}
	log.Debugf("Removed %d intermediate files", n)
	return nil
}

// cleanupOutput removes the output parts of the reduce phase.
func (j *Job) cleanupOutput() error {
	n, err := j.removeFiles("output-part-*")
	if err != nil {
		return err
	}
	log.Debugf("Removed %d output parts", n)
	return nil
}
