package mr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"
)

// Errors reported by the Driver
var (
	ErrNoInputs     = errors.New("no inputs")
	ErrUnknownPhase = errors.New("unknown phase")
)

// Driver controls the execution of a MapReduce Job
type Driver struct {
	job      *Job
	config   *config
	executor executor
	options  []Option
}

// Option allows configuration of a Driver
type Option func(*config)

// NewDriver creates a new Driver with the provided job and optional configuration
func NewDriver(job *Job, options ...Option) *Driver {
	d := &Driver{
		job:      job,
		executor: localExecutor{},
		options:  options,
	}
	d.config = d.buildConfig()
	return d
}

// buildConfig layers the Driver's options over viper's settings
func (d *Driver) buildConfig() *config {
	c := newConfig()
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	for _, f := range d.options {
		f(c)
	}

	if c.SplitSize > c.MapBinSize {
		log.Warn("Configured Split Size is larger than Map Bin size")
		c.SplitSize = c.MapBinSize
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}

	log.Debugf("Loaded config: %#v", c)
	return c
}

// WithSplitSize sets the SplitSize of the Driver
func WithSplitSize(s int64) Option {
	return func(c *config) {
		c.SplitSize = s
	}
}

// WithMapBinSize sets the MapBinSize of the Driver
func WithMapBinSize(s int64) Option {
	return func(c *config) {
		c.MapBinSize = s
	}
}

// WithReduceBins sets the number of reduce workers
func WithReduceBins(n uint) Option {
	return func(c *config) {
		c.ReduceBins = n
	}
}

// WithMaxConcurrency limits the number of concurrently running tasks
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithWorkingLocation sets the location and filesystem backend of the Driver
func WithWorkingLocation(location string) Option {
	return func(c *config) {
		c.WorkingLocation = location
	}
}

// WithInputs adds input files, directories or globs
func WithInputs(inputs ...string) Option {
	return func(c *config) {
		c.Inputs = append(c.Inputs, inputs...)
	}
}

// WithCombiner enables or disables the job's combiner
func WithCombiner(enabled bool) Option {
	return func(c *config) {
		c.Combine = enabled
	}
}

// WithCombineBuffer sets how many map output records are buffered before
// the combiner runs
func WithCombineBuffer(n int) Option {
	return func(c *config) {
		c.CombineBuffer = n
	}
}

// WithCleanup controls removal of intermediate files after a successful run
func WithCleanup(enabled bool) Option {
	return func(c *config) {
		c.Cleanup = enabled
	}
}

func (d *Driver) runMapPhase(ctx context.Context) error {
	inputSplits, err := resolveInputSplits(d.job.fileSystem, d.config.Inputs, d.config.SplitSize)
	if err != nil {
		return err
	}
	if len(inputSplits) == 0 {
		return fmt.Errorf("%w: no input splits", ErrNoInputs)
	}
	log.Debugf("Number of job input splits: %d", len(inputSplits))

	inputBins := packInputSplits(inputSplits, d.config.MapBinSize)
	log.Debugf("Number of job input bins: %d", len(inputBins))
	bar := pb.New(len(inputBins)).Prefix("Map").Start()
	defer bar.Finish()

	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	for binID, bin := range inputBins {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID, b := uint(binID), bin
		g.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			if err := d.executor.RunMapper(d.job, bID, b); err != nil {
				return fmt.Errorf("mapper %d: %w", bID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) runReducePhase(ctx context.Context) error {
	bar := pb.New(int(d.job.intermediateBins)).Prefix("Reduce").Start()
	defer bar.Finish()

	sem := semaphore.NewWeighted(int64(d.config.MaxConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	for binID := uint(0); binID < d.job.intermediateBins; binID++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID := binID
		g.Go(func() error {
			defer sem.Release(1)
			defer bar.Increment()
			if err := d.executor.RunReducer(d.job, bID); err != nil {
				return fmt.Errorf("reducer %d: %w", bID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) runPhases(ctx context.Context) error {
	if err := d.runMapPhase(ctx); err != nil {
		return fmt.Errorf("map phase: %w", err)
	}
	if err := d.runReducePhase(ctx); err != nil {
		return fmt.Errorf("reduce phase: %w", err)
	}
	return nil
}

// discardPartialResults removes the files of a failed run.
func (d *Driver) discardPartialResults() {
	if err := d.job.cleanupIntermediate(); err != nil {
		log.Warnf("Unable to remove intermediate files: %s", err)
	}
	if err := d.job.cleanupOutput(); err != nil {
		log.Warnf("Unable to remove output parts: %s", err)
	}
}

// Run executes the job: the optional prepare pass, the map phase, and the
// reduce phase, in that order. Any task failure aborts the run.
func (d *Driver) Run(ctx context.Context) error {
	if len(d.config.Inputs) == 0 {
		return ErrNoInputs
	}
	if d.config.ReduceBins == 0 {
		return errors.New("at least one reduce bin is required")
	}

	fsType := corfs.InferFilesystemType(d.config.Inputs[0])
	if corfs.InferFilesystemType(d.config.WorkingLocation) != fsType {
		return fmt.Errorf("inputs and working location %q must share a filesystem", d.config.WorkingLocation)
	}

	d.job.fileSystem = corfs.InitFilesystem(fsType)
	d.job.config = d.config
	d.job.outputPath = d.config.WorkingLocation
	d.job.intermediateBins = d.config.ReduceBins

	if lBackend, ok := d.executor.(*lambdaExecutor); ok {
		if fsType != corfs.S3 {
			return errors.New("the lambda executor requires an s3:// working location")
		}
		if err := lBackend.Deploy(); err != nil {
			return err
		}
	}

	conf := map[string]string{}
	if d.job.Prepare != nil {
		var err error
		conf, err = d.job.Prepare(ctx, d.job.fileSystem, d.config.Inputs)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}
	if err := d.job.setConf(conf); err != nil {
		return err
	}

	// Reducers read every shuffle file of their bin, so nothing from an
	// earlier run may remain in the working location
	if err := d.job.cleanupIntermediate(); err != nil {
		return fmt.Errorf("clearing working location: %w", err)
	}
	if err := d.job.cleanupOutput(); err != nil {
		return fmt.Errorf("clearing working location: %w", err)
	}

	if err := d.runPhases(ctx); err != nil {
		d.discardPartialResults()
		return err
	}

	if d.config.Cleanup {
		if err := d.job.cleanupIntermediate(); err != nil {
			log.Warnf("Unable to remove intermediate files: %s", err)
		}
	}

	log.Infof("Read %s, wrote %s",
		humanize.Bytes(uint64(atomic.LoadInt64(&d.job.bytesRead))),
		humanize.Bytes(uint64(atomic.LoadInt64(&d.job.bytesWritten))))
	return nil
}

var (
	lambdaFlag = pflag.Bool("lambda", false, "Use the AWS Lambda executor")
	memprofile = pflag.String("memprofile", "", "write memory profile to `file`")

	// Read through viper, see bindFlags
	_ = pflag.StringP("out", "o", "", "Output directory (can be local or in S3)")
	_ = pflag.UintP("reducers", "r", 0, "Number of reduce workers")
	_ = pflag.Bool("combine", true, "Pre-aggregate map output with the job's combiner")
	_ = pflag.BoolP("verbose", "v", false, "Enable debug logging")
)

func bindFlags() {
	viper.BindPFlag("working_location", pflag.Lookup("out"))
	viper.BindPFlag("reduce_bins", pflag.Lookup("reducers"))
	viper.BindPFlag("combine", pflag.Lookup("combine"))
	viper.BindPFlag("verbose", pflag.Lookup("verbose"))
}

// Main parses the command line and runs the Driver. Inside AWS Lambda, Main
// serves task invocations instead. Main exits the process on failure.
func (d *Driver) Main() {
	if runningInLambda() {
		lambdaDriver = d
		lambda.Start(handleRequest)
		return
	}

	pflag.Parse()
	bindFlags()
	d.config = d.buildConfig()
	d.config.Inputs = append(d.config.Inputs, pflag.Args()...)

	if *lambdaFlag {
		d.executor = newLambdaExecutor(viper.GetString("lambda_function_name"))
	}

	start := time.Now()
	if err := d.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
	log.Infof("Job Execution Time: %s", time.Since(start))

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
