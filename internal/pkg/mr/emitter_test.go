package mr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/bcongdon/tfidf/internal/pkg/corfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWriteCloser struct {
	*bytes.Buffer
}

func (t *testWriteCloser) Close() error {
	return nil
}

func TestHashPartition(t *testing.T) {
	bin := HashPartition("foo", 100)
	assert.Equal(t, bin, uint(0x63))
}

func TestReducerEmitter(t *testing.T) {
	writer := &testWriteCloser{new(bytes.Buffer)}
	emitter := newReducerEmitter(writer)

	err := emitter.Emit("key", "value")
	assert.Nil(t, err)
	assert.Equal(t, int64(10), emitter.bytesWritten())

	written, err := ioutil.ReadAll(writer)
	assert.Nil(t, err)
	assert.Equal(t, "key\tvalue\n", string(written))

	err = emitter.close()
	assert.Nil(t, err)
}

func TestReducerEmitterThreadSafety(t *testing.T) {
	writer := &testWriteCloser{new(bytes.Buffer)}
	emitter := newReducerEmitter(writer)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(key int) {
			defer wg.Done()
			err := emitter.Emit(fmt.Sprint(key), "value")
			assert.Nil(t, err)
		}(i)
	}
	wg.Wait()

	written, err := ioutil.ReadAll(writer)
	assert.Nil(t, err)

	records := strings.Split(string(written), "\n")
	assert.Len(t, records, 11)
	for i := 0; i < 10; i++ {
		assert.Contains(t, records, fmt.Sprintf("%d\tvalue", i))
	}

	err = emitter.close()
	assert.Nil(t, err)
}

type mockFs struct {
	mut     sync.Mutex
	writers map[string]*testWriteCloser
}

func newMockFs() *mockFs {
	return &mockFs{writers: make(map[string]*testWriteCloser)}
}

func (m *mockFs) ListFiles(string) ([]corfs.FileInfo, error) {
	return []corfs.FileInfo{}, nil
}

func (m *mockFs) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	return ioutil.NopCloser(new(bytes.Buffer)), nil
}

func (m *mockFs) OpenWriter(filePath string) (io.WriteCloser, error) {
	m.mut.Lock()
	defer m.mut.Unlock()
	if _, ok := m.writers[filePath]; !ok {
		buf := new(bytes.Buffer)
		m.writers[filePath] = &testWriteCloser{buf}
	}
	return m.writers[filePath], nil
}

func (m *mockFs) Stat(filePath string) (corfs.FileInfo, error) {
	return corfs.FileInfo{
		Name: filePath,
		Size: 0,
	}, nil
}

func (m *mockFs) Init() error { return nil }

func (m *mockFs) Join(e ...string) string { return strings.Join(e, "/") }

func (m *mockFs) Delete(string) error { return nil }

func TestMapperEmitter(t *testing.T) {
	mFs := newMockFs()
	var fs corfs.FileSystem = mFs
	emitter := newMapperEmitter(3, 0, "out", fs)

	err := emitter.Emit("key1", "val1")
	assert.Nil(t, err)

	err = emitter.Emit("key123", "val2")
	assert.Nil(t, err)

	err = emitter.Emit("key359", "val3")
	assert.Nil(t, err)

	assert.Len(t, mFs.writers, 3)

	assert.Equal(t, `{"key":"key123","value":"val2"}`+"\n", string(mFs.writers["out/map-bin0-0.out"].Bytes()))
	assert.Equal(t, `{"key":"key359","value":"val3"}`+"\n", string(mFs.writers["out/map-bin1-0.out"].Bytes()))
	assert.Equal(t, `{"key":"key1","value":"val1"}`+"\n", string(mFs.writers["out/map-bin2-0.out"].Bytes()))
	assert.True(t, emitter.bytesWritten() > 0)

	assert.Nil(t, emitter.close())
}

func TestMapperEmitterCustomPartition(t *testing.T) {
	mFs := newMockFs()
	var fs corfs.FileSystem = mFs
	emitter := newMapperEmitter(3, 0, "out", fs)
	emitter.partitionFunc = func(key string, numBuckets uint) uint {
		if strings.HasPrefix(key, "a") {
			return 0
		}
		return numBuckets - 1
	}

	err := emitter.Emit("a", "val1")
	assert.Nil(t, err)

	err = emitter.Emit("a", "val2")
	assert.Nil(t, err)

	err = emitter.Emit("b", "val3")
	assert.Nil(t, err)

	assert.Len(t, mFs.writers, 2)

	assert.Equal(t, `{"key":"a","value":"val1"}`+"\n"+`{"key":"a","value":"val2"}`+"\n", string(mFs.writers["out/map-bin0-0.out"].Bytes()))
	assert.Equal(t, `{"key":"b","value":"val3"}`+"\n", string(mFs.writers["out/map-bin2-0.out"].Bytes()))

	assert.Nil(t, emitter.close())
}

func TestMapperEmitterPartitionOutOfRange(t *testing.T) {
	emitter := newMapperEmitter(2, 0, "out", newMockFs())
	emitter.partitionFunc = func(string, uint) uint { return 2 }

	assert.NotNil(t, emitter.Emit("a", "1"))
}

// sumCombiner adds up integer values
type sumCombiner struct {
	invocations int
}

func (s *sumCombiner) Combine(key string, values ValueIterator, emitter Emitter) error {
	s.invocations++
	sum := 0
	for v := range values.Iter() {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		sum += n
	}
	return emitter.Emit(key, strconv.Itoa(sum))
}

func TestMapperEmitterCombiner(t *testing.T) {
	mFs := newMockFs()
	emitter := newMapperEmitter(1, 0, "out", mFs)
	combiner := &sumCombiner{}
	emitter.combiner = combiner

	for _, kv := range []KeyValue{{"b", "1"}, {"a", "1"}, {"b", "2"}, {"a", "3"}} {
		require.Nil(t, emitter.Emit(kv.Key, kv.Value))
	}
	// Nothing is written until the buffer is flushed
	assert.Len(t, mFs.writers, 0)

	assert.Nil(t, emitter.close())
	assert.Equal(t, 2, combiner.invocations)
	assert.Equal(t, `{"key":"a","value":"4"}`+"\n"+`{"key":"b","value":"3"}`+"\n", mFs.writers["out/map-bin0-0.out"].String())
}

func TestMapperEmitterCombinerSpill(t *testing.T) {
	mFs := newMockFs()
	emitter := newMapperEmitter(1, 0, "out", mFs)
	combiner := &sumCombiner{}
	emitter.combiner = combiner
	emitter.maxBuffered = 2

	for _, v := range []string{"1", "1", "1", "1", "1"} {
		require.Nil(t, emitter.Emit("a", v))
	}
	assert.Nil(t, emitter.close())

	// Spills after 2 and 4 records, then the final flush on close
	assert.Equal(t, 3, combiner.invocations)
	assert.Equal(t,
		`{"key":"a","value":"2"}`+"\n"+`{"key":"a","value":"2"}`+"\n"+`{"key":"a","value":"1"}`+"\n",
		mFs.writers["out/map-bin0-0.out"].String())
}

type failingCombiner struct{}

func (failingCombiner) Combine(string, ValueIterator, Emitter) error {
	return errors.New("combiner unavailable")
}

func TestMapperEmitterCombinerFailure(t *testing.T) {
	mFs := newMockFs()
	emitter := newMapperEmitter(1, 0, "out", mFs)
	emitter.combiner = failingCombiner{}

	require.Nil(t, emitter.Emit("a", "1"))
	require.Nil(t, emitter.Emit("a", "1"))
	assert.Nil(t, emitter.close())

	// Raw records are passed through untouched
	assert.Equal(t,
		`{"key":"a","value":"1"}`+"\n"+`{"key":"a","value":"1"}`+"\n",
		mFs.writers["out/map-bin0-0.out"].String())
}
