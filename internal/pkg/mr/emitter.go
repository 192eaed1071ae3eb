package mr

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
	log "github.com/sirupsen/logrus"
)

// Emitter enables mappers, combiners and reducers to yield key-value pairs.
type Emitter interface {
	Emit(key, value string) error
	close() error
	bytesWritten() int64
}

// reducerEmitter is a threadsafe emitter.
type reducerEmitter struct {
	writer       io.WriteCloser
	mut          *sync.Mutex
	writtenBytes int64
}

// newReducerEmitter initializes and returns a new reducerEmitter
func newReducerEmitter(writer io.WriteCloser) *reducerEmitter {
	return &reducerEmitter{
		writer: writer,
		mut:    &sync.Mutex{},
	}
}

// Emit yields a key-value pair to the framework.
func (e *reducerEmitter) Emit(key, value string) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	n, err := fmt.Fprintf(e.writer, "%s\t%s\n", key, value)
	e.writtenBytes += int64(n)
	return err
}

// close terminates the reducerEmitter. close must not be called more than once
func (e *reducerEmitter) close() error {
	return e.writer.Close()
}

func (e *reducerEmitter) bytesWritten() int64 {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.writtenBytes
}

// collectingEmitter gathers the output of a Combiner in memory.
type collectingEmitter struct {
	records []KeyValue
}

func (c *collectingEmitter) Emit(key, value string) error {
	c.records = append(c.records, KeyValue{Key: key, Value: value})
	return nil
}

func (c *collectingEmitter) close() error { return nil }

func (c *collectingEmitter) bytesWritten() int64 { return 0 }

// mapperEmitter is an emitter that partitions keys written to it.
// mapperEmitter maintains a map of writers. Keys are partitioned into one of numBins
// intermediate "shuffle" bins. Each bin is written as a separate file.
// When a combiner is set, records are buffered per bin and combined before
// being written; the buffer is flushed whenever it reaches maxBuffered records.
type mapperEmitter struct {
	numBins       uint                    // number of intermediate shuffle bins
	writers       map[uint]io.WriteCloser // maps a parition number to an open writer
	fs            corfs.FileSystem        // filesystem to use when opening writers
	mapperID      uint                    // numeric identifier of the mapper using this emitter
	outDir        string                  // folder to save map output to
	partitionFunc PartitionFunc           // PartitionFunc to use when partitioning map output keys into intermediate bins
	writtenBytes  int64                   // counter for number of bytes written from emitted key/val pairs

	combiner    Combiner
	buffered    map[uint][]KeyValue
	numBuffered int
	maxBuffered int
}

// Initializes a new mapperEmitter
func newMapperEmitter(numBins uint, mapperID uint, outDir string, fs corfs.FileSystem) mapperEmitter {
	return mapperEmitter{
		numBins:       numBins,
		writers:       make(map[uint]io.WriteCloser, numBins),
		fs:            fs,
		mapperID:      mapperID,
		outDir:        outDir,
		partitionFunc: HashPartition,
		buffered:      make(map[uint][]KeyValue),
	}
}

// HashPartition partitions a key to one of numBins shuffle bins
func HashPartition(key string, numBins uint) uint {
	h := fnv.New64()
	h.Write([]byte(key))
	return uint(h.Sum64() % uint64(numBins))
}

func intermediateFileName(bin, mapperID uint) string {
	return fmt.Sprintf("map-bin%d-%d.out", bin, mapperID)
}

// Emit yields a key-value pair to the framework.
func (me *mapperEmitter) Emit(key, value string) error {
	bin := me.partitionFunc(key, me.numBins)
	if bin >= me.numBins {
		return fmt.Errorf("partition %d out of range for %d bins", bin, me.numBins)
	}

	if me.combiner == nil {
		return me.write(bin, KeyValue{Key: key, Value: value})
	}

	me.buffered[bin] = append(me.buffered[bin], KeyValue{Key: key, Value: value})
	me.numBuffered++
	if me.maxBuffered > 0 && me.numBuffered >= me.maxBuffered {
		return me.flush()
	}
	return nil
}

func (me *mapperEmitter) write(bin uint, kv KeyValue) error {
	// Open writer for the bin, if necessary
	writer, exists := me.writers[bin]
	if !exists {
		var err error
		path := me.fs.Join(me.outDir, intermediateFileName(bin, me.mapperID))

		writer, err = me.fs.OpenWriter(path)
		if err != nil {
			return err
		}
		me.writers[bin] = writer
	}

	data, err := json.Marshal(kv)
	if err != nil {
		log.Error(err)
		return err
	}

	data = append(data, '\n')
	n, err := writer.Write(data)
	me.writtenBytes += int64(n)
	return err
}

// flush combines and writes all buffered records.
func (me *mapperEmitter) flush() error {
	bins := make([]uint, 0, len(me.buffered))
	for bin := range me.buffered {
		bins = append(bins, bin)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })

	for _, bin := range bins {
		records := me.buffered[bin]
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Key < records[j].Key
		})

		for start := 0; start < len(records); {
			end := start + 1
			for end < len(records) && records[end].Key == records[start].Key {
				end++
			}
			for _, kv := range me.combine(records[start:end]) {
				if err := me.write(bin, kv); err != nil {
					return err
				}
			}
			start = end
		}
	}

	me.buffered = make(map[uint][]KeyValue)
	me.numBuffered = 0
	return nil
}

// combine runs the combiner over records sharing one key. Combining is only
// an optimization, so on failure the raw records are passed through.
func (me *mapperEmitter) combine(records []KeyValue) []KeyValue {
	collector := &collectingEmitter{}
	err := me.combiner.Combine(records[0].Key, newValueIterator(records), collector)
	if err != nil {
		log.Warnf("Combiner failed for key %q, writing %d uncombined records: %s", records[0].Key, len(records), err)
		return records
	}
	return collector.records
}

// close flushes any buffered records and terminates the mapperEmitter.
// Must not be called more than once
func (me *mapperEmitter) close() error {
	errs := make([]string, 0)
	if err := me.flush(); err != nil {
		errs = append(errs, err.Error())
	}
	for _, writer := range me.writers {
		err := writer.Close()
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}

	return nil
}

func (me *mapperEmitter) bytesWritten() int64 {
	return me.writtenBytes
}
