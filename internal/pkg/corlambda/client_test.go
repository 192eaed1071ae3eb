package corlambda

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/stretchr/testify/assert"
)

type lambdaInvokerMock struct {
	lambdaiface.LambdaAPI
	invokeFailures int
	invocations    int
	outputPayload  []byte
}

func (m *lambdaInvokerMock) Invoke(*lambda.InvokeInput) (*lambda.InvokeOutput, error) {
	m.invocations++
	if m.invokeFailures > 0 {
		m.invokeFailures--
		return &lambda.InvokeOutput{
			FunctionError: aws.String("Unhandled"),
			Payload:       []byte(`{"errorMessage":"reduce task failed"}`),
		}, nil
	}
	return &lambda.InvokeOutput{
		Payload: m.outputPayload,
	}, nil
}

type lambdaDeployMock struct {
	lambdaiface.LambdaAPI
	getFunctionOutput                 *lambda.GetFunctionOutput
	capturedCreateFunctionInput       *lambda.CreateFunctionInput
	capturedUpdateFunctionCodeInput   *lambda.UpdateFunctionCodeInput
	capturedUpdateFunctionConfigInput *lambda.UpdateFunctionConfigurationInput
	capturedDeleteFunctionInput       *lambda.DeleteFunctionInput
}

func (d *lambdaDeployMock) GetFunction(*lambda.GetFunctionInput) (*lambda.GetFunctionOutput, error) {
	if d.getFunctionOutput == nil {
		return nil, errors.New("ResourceNotFoundException")
	}
	return d.getFunctionOutput, nil
}

func (d *lambdaDeployMock) CreateFunction(input *lambda.CreateFunctionInput) (*lambda.FunctionConfiguration, error) {
	d.capturedCreateFunctionInput = input
	return nil, nil
}

func (d *lambdaDeployMock) UpdateFunctionCode(input *lambda.UpdateFunctionCodeInput) (*lambda.FunctionConfiguration, error) {
	d.capturedUpdateFunctionCodeInput = input
	return nil, nil
}

func (d *lambdaDeployMock) UpdateFunctionConfiguration(input *lambda.UpdateFunctionConfigurationInput) (*lambda.FunctionConfiguration, error) {
	d.capturedUpdateFunctionConfigInput = input
	return nil, nil
}

func (d *lambdaDeployMock) DeleteFunction(input *lambda.DeleteFunctionInput) (*lambda.DeleteFunctionOutput, error) {
	d.capturedDeleteFunctionInput = input
	return nil, nil
}

func stubbedBuild(code []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return code, nil }
}

func TestFunctionNeedsUpdate(t *testing.T) {
	functionCode := []byte("function code")
	codeHash := sha256.Sum256(functionCode)
	codeHashDigest := base64.StdEncoding.EncodeToString(codeHash[:])

	cfg := &lambda.FunctionConfiguration{CodeSha256: aws.String(codeHashDigest)}

	assert.True(t, functionNeedsUpdate([]byte("not function code"), cfg))
	assert.False(t, functionNeedsUpdate(functionCode, cfg))
}

func TestInvoke(t *testing.T) {
	client := &LambdaClient{
		Client: &lambdaInvokerMock{outputPayload: []byte("payload")},
	}

	output, err := client.Invoke("function", []byte("payload"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), output)
}

func TestInvokeRetry(t *testing.T) {
	mock := &lambdaInvokerMock{
		invokeFailures: 2,
		outputPayload:  []byte("payload"),
	}
	client := &LambdaClient{Client: mock}

	output, err := client.Invoke("function", []byte("payload"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), output)
	assert.Equal(t, 3, mock.invocations)
}

func TestInvokeOutOfTries(t *testing.T) {
	mock := &lambdaInvokerMock{invokeFailures: MaxLambdaRetries + 1}
	client := &LambdaClient{Client: mock}

	_, err := client.Invoke("function", []byte("payload"))
	assert.NotNil(t, err)
	assert.Equal(t, MaxLambdaRetries+1, mock.invocations)
}

func TestCreateFunction(t *testing.T) {
	mock := &lambdaDeployMock{}
	client := &LambdaClient{Client: mock, Build: stubbedBuild([]byte("zip"))}

	config := &FunctionConfig{
		Name:       "tfidf function",
		RoleARN:    "testARN",
		Timeout:    10,
		MemorySize: 1000,
	}

	err := client.DeployFunction(config)
	assert.Nil(t, err)

	assert.Equal(t, "tfidf function", *mock.capturedCreateFunctionInput.FunctionName)
	assert.Equal(t, "testARN", *mock.capturedCreateFunctionInput.Role)
	assert.Equal(t, int64(10), *mock.capturedCreateFunctionInput.Timeout)
	assert.Equal(t, int64(1000), *mock.capturedCreateFunctionInput.MemorySize)
	assert.Equal(t, []byte("zip"), mock.capturedCreateFunctionInput.Code.ZipFile)
}

func TestUpdateFunction(t *testing.T) {
	mock := &lambdaDeployMock{
		getFunctionOutput: &lambda.GetFunctionOutput{
			Configuration: &lambda.FunctionConfiguration{
				CodeSha256: aws.String("sha"),
				Role:       aws.String("wrongARN"),
				Timeout:    aws.Int64(10),
				MemorySize: aws.Int64(1000),
			},
		},
	}
	client := &LambdaClient{Client: mock, Build: stubbedBuild([]byte("zip"))}

	config := &FunctionConfig{
		Name:       "tfidf function",
		RoleARN:    "testARN",
		Timeout:    10,
		MemorySize: 1000,
	}

	err := client.DeployFunction(config)
	assert.Nil(t, err)

	assert.NotNil(t, mock.capturedUpdateFunctionCodeInput)
	assert.Equal(t, []byte("zip"), mock.capturedUpdateFunctionCodeInput.ZipFile)
	assert.Equal(t, "testARN", *mock.capturedUpdateFunctionConfigInput.Role)
	assert.Nil(t, mock.capturedCreateFunctionInput)
}

func TestDeployUpToDate(t *testing.T) {
	code := []byte("zip")
	codeHash := sha256.Sum256(code)

	mock := &lambdaDeployMock{
		getFunctionOutput: &lambda.GetFunctionOutput{
			Configuration: &lambda.FunctionConfiguration{
				CodeSha256: aws.String(base64.StdEncoding.EncodeToString(codeHash[:])),
				Role:       aws.String("testARN"),
				Timeout:    aws.Int64(10),
				MemorySize: aws.Int64(1000),
			},
		},
	}
	client := &LambdaClient{Client: mock, Build: stubbedBuild(code)}

	err := client.DeployFunction(&FunctionConfig{
		Name:       "tfidf function",
		RoleARN:    "testARN",
		Timeout:    10,
		MemorySize: 1000,
	})
	assert.Nil(t, err)
	assert.Nil(t, mock.capturedUpdateFunctionCodeInput)
	assert.Nil(t, mock.capturedUpdateFunctionConfigInput)
}

func TestDeleteFunction(t *testing.T) {
	mock := &lambdaDeployMock{}
	client := &LambdaClient{Client: mock}

	err := client.DeleteFunction("function")
	assert.Nil(t, err)

	assert.Equal(t, "function", *mock.capturedDeleteFunctionInput.FunctionName)
}
