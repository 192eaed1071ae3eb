package mr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
	"github.com/bcongdon/tfidf/internal/pkg/coriam"
	"github.com/bcongdon/tfidf/internal/pkg/corlambda"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	lambdaDriver *Driver
)

// runningInLambda infers if the program is running in AWS lambda via inspection of the environment
func runningInLambda() bool {
	expectedEnvVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

// handleRequest executes a single task inside Lambda. The job configuration
// is taken from the task payload, never computed locally.
func handleRequest(ctx context.Context, task task) (string, error) {
	job := lambdaDriver.job
	job.fileSystem = corfs.InitFilesystem(task.FileSystemType)
	job.intermediateBins = task.IntermediateBins
	job.outputPath = task.WorkingLocation
	job.config = &config{
		Combine:       task.Combine,
		CombineBuffer: task.CombineBuffer,
	}
	job.conf = nil
	if err := job.setConf(task.Conf); err != nil {
		return "", err
	}

	// Stats are reported per invocation
	atomic.StoreInt64(&job.bytesRead, 0)
	atomic.StoreInt64(&job.bytesWritten, 0)

	var err error
	switch task.Phase {
	case MapPhase:
		err = job.runMapper(task.BinID, task.Splits)
	case ReducePhase:
		err = job.runReducer(task.BinID)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownPhase, task.Phase)
	}
	if err != nil {
		return "", err
	}

	result := taskResult{
		BytesRead:    atomic.LoadInt64(&job.bytesRead),
		BytesWritten: atomic.LoadInt64(&job.bytesWritten),
	}
	payload, err := json.Marshal(result)
	return string(payload), err
}

type lambdaExecutor struct {
	*corlambda.LambdaClient
	*coriam.IAMClient
	functionName string
}

func newLambdaExecutor(functionName string) *lambdaExecutor {
	return &lambdaExecutor{
		corlambda.NewLambdaClient(),
		coriam.NewIAMClient(),
		functionName,
	}
}

func (l *lambdaExecutor) newTask(job *Job, phase Phase, binID uint) task {
	return task{
		Phase:            phase,
		BinID:            binID,
		IntermediateBins: job.intermediateBins,
		FileSystemType:   corfs.InferFilesystemType(job.outputPath),
		WorkingLocation:  job.outputPath,
		Conf:             job.Conf(),
		Combine:          job.config.Combine,
		CombineBuffer:    job.config.CombineBuffer,
	}
}

func (l *lambdaExecutor) invoke(job *Job, t task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	output, err := l.Invoke(l.functionName, payload)
	if err != nil {
		return err
	}

	// Lambda JSON-encodes the string returned by handleRequest
	var encoded string
	if err := json.Unmarshal(output, &encoded); err != nil {
		log.Debugf("Unexpected task output %q: %s", output, err)
		return nil
	}
	var result taskResult
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		log.Debugf("Unexpected task result %q: %s", encoded, err)
		return nil
	}
	atomic.AddInt64(&job.bytesRead, result.BytesRead)
	atomic.AddInt64(&job.bytesWritten, result.BytesWritten)
	return nil
}

func (l *lambdaExecutor) RunMapper(job *Job, binID uint, inputSplits []inputSplit) error {
	mapTask := l.newTask(job, MapPhase, binID)
	mapTask.Splits = inputSplits
	return l.invoke(job, mapTask)
}

func (l *lambdaExecutor) RunReducer(job *Job, binID uint) error {
	return l.invoke(job, l.newTask(job, ReducePhase, binID))
}

// Deploy makes sure the executor function (and optionally its IAM role) exist
// and run the current build of the program.
func (l *lambdaExecutor) Deploy() error {
	roleARN := viper.GetString("lambda_role_arn")
	if viper.GetBool("lambda_manage_role") {
		var err error
		roleARN, err = l.DeployPermissions(viper.GetString("lambda_role_name"))
		if err != nil {
			return fmt.Errorf("deploying IAM role: %w", err)
		}
	}

	return l.DeployFunction(&corlambda.FunctionConfig{
		Name:       l.functionName,
		RoleARN:    roleARN,
		Timeout:    viper.GetInt64("lambda_timeout"),
		MemorySize: viper.GetInt64("lambda_memory"),
	})
}
