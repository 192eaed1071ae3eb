package tfidf

import (
	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

// NewJob assembles the TF-IDF job: the term emitter, the count combiner and
// the weight reducer, with composite-key partitioning and ordering. The
// corpus is counted before the map phase.
func NewJob() *mr.Job {
	job := mr.NewJob(termEmitter{}, &weightReducer{})
	job.Combine = countCombiner{}
	job.Partition = PartitionByTerm
	job.SortCompare = SortCompare
	job.GroupCompare = GroupCompare
	job.Prepare = prepareNumDocs
	return job
}
