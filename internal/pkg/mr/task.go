package mr

import "github.com/bcongdon/tfidf/internal/pkg/corfs"

// Phase is a stage of job execution
type Phase int

// Phases of job execution
const (
	MapPhase Phase = iota
	ReducePhase
)

// task is the payload sent to a remote executor.
type task struct {
	Phase            Phase
	BinID            uint
	Splits           []inputSplit
	IntermediateBins uint
	FileSystemType   corfs.FileSystemType
	WorkingLocation  string
	Conf             map[string]string
	Combine          bool
	CombineBuffer    int
}

// taskResult is returned by a remote executor once a task completes
type taskResult struct {
	BytesRead    int64
	BytesWritten int64
}
