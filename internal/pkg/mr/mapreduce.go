// Package mr is a grouped-aggregation MapReduce engine.
//
// Mappers emit string key/value pairs which are partitioned into shuffle
// bins, optionally pre-aggregated by a Combiner, and written to a
// FileSystem. Each reduce bin is then sorted with the job's sort comparator
// and split into groups with its grouping comparator; a Reducer sees every
// record of a group, in sort order, during a single invocation.
package mr

import "strings"

// KeyValue is a single intermediate record.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ValueIterator iterates over the records of one group.
// Records are delivered in the job's sort order.
type ValueIterator struct {
	records []KeyValue
}

func newValueIterator(records []KeyValue) ValueIterator {
	return ValueIterator{
		records: records,
	}
}

// Iter iterates over the values of the group.
func (v *ValueIterator) Iter() <-chan string {
	ch := make(chan string, len(v.records))
	for _, kv := range v.records {
		ch <- kv.Value
	}
	close(ch)
	return ch
}

// Records iterates over the full records of the group. Unlike Iter, the key
// of every record is preserved, which is needed when the grouping comparator
// is coarser than the sort comparator.
func (v *ValueIterator) Records() <-chan KeyValue {
	ch := make(chan KeyValue, len(v.records))
	for _, kv := range v.records {
		ch <- kv
	}
	close(ch)
	return ch
}

// Len returns the number of records in the group.
func (v *ValueIterator) Len() int {
	return len(v.records)
}

// Mapper defines the interface for a Map task.
// Map is called once per input line; a returned error fails the task.
type Mapper interface {
	Map(key, value string, emitter Emitter) error
}

// Reducer defines the interface for a Reduce task.
// Reduce is called once per group; a returned error fails the task.
type Reducer interface {
	Reduce(key string, values ValueIterator, emitter Emitter) error
}

// Combiner pre-aggregates map output sharing an identical key before it is
// shuffled. A Combiner may be invoked any number of times for the same key,
// including not at all, so it must be associative and commutative.
type Combiner interface {
	Combine(key string, values ValueIterator, emitter Emitter) error
}

// Configurable is implemented by mappers, combiners and reducers that need
// the job configuration before processing any records.
type Configurable interface {
	Configure(conf map[string]string) error
}

// PartitionFunc assigns a key to one of numBins shuffle bins.
type PartitionFunc func(key string, numBins uint) uint

// CompareFunc orders two keys, returning a negative number, zero, or a
// positive number like strings.Compare.
type CompareFunc func(a, b string) int

// byteOrder is the default sort and grouping comparator.
func byteOrder(a, b string) int {
	return strings.Compare(a, b)
}
