package corlambda

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	log "github.com/sirupsen/logrus"
)

// MaxLambdaRetries is the number of times a failed invocation is retried
const MaxLambdaRetries = 3

// LambdaClient wraps the AWS Lambda API
type LambdaClient struct {
	Client lambdaiface.LambdaAPI
	// Build produces the deployment package. Defaults to cross-compiling
	// the program in the working directory.
	Build func() ([]byte, error)
}

// FunctionConfig holds the settings of a deployed executor function
type FunctionConfig struct {
	Name       string
	RoleARN    string
	Timeout    int64
	MemorySize int64
}

// NewLambdaClient initializes a LambdaClient from the shared AWS config
func NewLambdaClient() *LambdaClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &LambdaClient{
		Client: lambda.New(sess),
	}
}

func functionNeedsUpdate(functionCode []byte, cfg *lambda.FunctionConfiguration) bool {
	codeHash := sha256.Sum256(functionCode)
	codeHashDigest := base64.StdEncoding.EncodeToString(codeHash[:])
	return codeHashDigest != aws.StringValue(cfg.CodeSha256)
}

func configNeedsUpdate(function *FunctionConfig, cfg *lambda.FunctionConfiguration) bool {
	return function.RoleARN != aws.StringValue(cfg.Role) ||
		function.Timeout != aws.Int64Value(cfg.Timeout) ||
		function.MemorySize != aws.Int64Value(cfg.MemorySize)
}

// DeployFunction builds the current binary and creates or updates the
// function described by function.
func (l *LambdaClient) DeployFunction(function *FunctionConfig) error {
	build := l.Build
	if build == nil {
		build = buildPackage
	}
	functionCode, err := build()
	if err != nil {
		return fmt.Errorf("building lambda package: %w", err)
	}

	exists, err := l.getFunction(function.Name)
	if exists == nil || err != nil {
		log.Infof("Creating Lambda function '%s'", function.Name)
		return l.createFunction(function, functionCode)
	}

	if functionNeedsUpdate(functionCode, exists.Configuration) {
		log.Infof("Updating Lambda function code for '%s'", function.Name)
		if err := l.updateFunctionCode(function.Name, functionCode); err != nil {
			return err
		}
	} else {
		log.Debugf("Function code for '%s' is already up-to-date", function.Name)
	}

	if configNeedsUpdate(function, exists.Configuration) {
		log.Infof("Updating Lambda function configuration for '%s'", function.Name)
		return l.updateFunctionConfig(function)
	}
	return nil
}

func (l *LambdaClient) DeleteFunction(functionName string) error {
	_, err := l.Client.DeleteFunction(&lambda.DeleteFunctionInput{
		FunctionName: aws.String(functionName),
	})
	return err
}

func crossCompile(binName string) (string, error) {
	tmpDir, err := ioutil.TempDir("", "")
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(tmpDir, binName)

	args := []string{
		"build",
		"-o", outputPath,
		"-ldflags", "-s -w",
		".",
	}
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=amd64", "CGO_ENABLED=0")

	combinedOut, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s\n%s", err, combinedOut)
	}

	return outputPath, nil
}

// buildPackage cross-compiles the running program and zips it the way the
// go1.x Lambda runtime expects.
func buildPackage() ([]byte, error) {
	log.Debug("Compiling binary for Lambda")
	binFile, err := crossCompile("lambda_artifact")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(filepath.Dir(binFile))

	binReader, err := os.Open(binFile)
	if err != nil {
		return nil, err
	}
	defer binReader.Close()

	zipBuf := new(bytes.Buffer)
	archive := zip.NewWriter(zipBuf)
	header := &zip.FileHeader{
		Name:           "main",
		ExternalAttrs:  (0777 << 16), // File permissions
		CreatorVersion: (3 << 8),     // Magic number indicating a Unix creator
	}

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(writer, binReader); err != nil {
		return nil, err
	}
	if err = archive.Close(); err != nil {
		return nil, err
	}

	return zipBuf.Bytes(), nil
}

func (l *LambdaClient) updateFunctionCode(functionName string, code []byte) error {
	_, err := l.Client.UpdateFunctionCode(&lambda.UpdateFunctionCodeInput{
		ZipFile:      code,
		FunctionName: aws.String(functionName),
	})
	return err
}

func (l *LambdaClient) updateFunctionConfig(function *FunctionConfig) error {
	_, err := l.Client.UpdateFunctionConfiguration(&lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(function.Name),
		Role:         aws.String(function.RoleARN),
		Timeout:      aws.Int64(function.Timeout),
		MemorySize:   aws.Int64(function.MemorySize),
	})
	return err
}

func (l *LambdaClient) createFunction(function *FunctionConfig, code []byte) error {
	_, err := l.Client.CreateFunction(&lambda.CreateFunctionInput{
		Code:         &lambda.FunctionCode{ZipFile: code},
		FunctionName: aws.String(function.Name),
		Handler:      aws.String("main"),
		Runtime:      aws.String(lambda.RuntimeGo1X),
		Role:         aws.String(function.RoleARN),
		Timeout:      aws.Int64(function.Timeout),
		MemorySize:   aws.Int64(function.MemorySize),
	})
	return err
}

func (l *LambdaClient) getFunction(functionName string) (*lambda.GetFunctionOutput, error) {
	return l.Client.GetFunction(&lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	})
}

// Invoke synchronously runs the function, retrying invocations that report
// a function error up to MaxLambdaRetries times.
func (l *LambdaClient) Invoke(functionName string, payload []byte) (outputPayload []byte, err error) {
	invokeInput := &lambda.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      payload,
	}

	for try := 0; try <= MaxLambdaRetries; try++ {
		if try > 0 {
			log.Debugf("Retrying invocation of '%s' (attempt %d)", functionName, try+1)
		}
		output, err := l.Client.Invoke(invokeInput)
		if err != nil {
			return nil, err
		}
		if output.FunctionError == nil {
			return output.Payload, nil
		}
		err = fmt.Errorf("function error (%s): %s", aws.StringValue(output.FunctionError), output.Payload)
		log.Warn(err)
		outputPayload = output.Payload
	}
	return outputPayload, fmt.Errorf("invocation of '%s' failed after %d attempts", functionName, MaxLambdaRetries+1)
}
