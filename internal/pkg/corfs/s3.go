package corfs

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/mattetti/filebuffer"
)

// Ranged GETs are issued in chunks of this size
const defaultReadChunkSize = 64 * 1024 * 1024

// S3FileSystem serves objects addressed as s3://bucket/key.
type S3FileSystem struct {
	s3Client s3iface.S3API
}

// s3Path is a parsed s3://bucket/key URI
type s3Path struct {
	bucket string
	key    string
}

func parseS3Path(uri string) (s3Path, error) {
	if !strings.HasPrefix(uri, s3Scheme) {
		return s3Path{}, fmt.Errorf("not an s3 path: %q", uri)
	}
	trimmed := strings.TrimPrefix(uri, s3Scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return s3Path{}, fmt.Errorf("s3 path has no bucket: %q", uri)
	}
	p := s3Path{bucket: parts[0]}
	if len(parts) == 2 {
		p.key = parts[1]
	}
	return p, nil
}

func (p s3Path) String() string {
	return s3Scheme + p.bucket + "/" + p.key
}

// globPrefix returns the portion of a key glob preceding the first
// wildcard, which is usable as a ListObjects prefix.
func globPrefix(keyGlob string) string {
	if i := strings.IndexAny(keyGlob, "*?["); i >= 0 {
		return keyGlob[:i]
	}
	return keyGlob
}

// ListFiles lists objects matching pathGlob. A glob without wildcards lists
// every object under that prefix.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	parsed, err := parseS3Path(pathGlob)
	if err != nil {
		return nil, err
	}

	prefix := globPrefix(parsed.key)
	hasWildcard := prefix != parsed.key

	files := make([]FileInfo, 0)
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(parsed.bucket),
		Prefix: aws.String(prefix),
	}
	var matchErr error
	err = s.s3Client.ListObjectsV2Pages(params,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if hasWildcard {
					matched, err := path.Match(parsed.key, key)
					if err != nil {
						matchErr = err
						return false
					}
					if !matched {
						continue
					}
				}
				files = append(files, FileInfo{
					Name: s3Path{bucket: parsed.bucket, key: key}.String(),
					Size: aws.Int64Value(object.Size),
				})
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	return files, matchErr
}

func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	parsed, err := parseS3Path(filePath)
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}

	reader := &s3Reader{
		client:    s.s3Client,
		bucket:    parsed.bucket,
		key:       parsed.key,
		offset:    startAt,
		chunkSize: defaultReadChunkSize,
		totalSize: info.Size,
	}
	if startAt >= info.Size {
		return reader, nil
	}
	return reader, reader.loadNextChunk()
}

// OpenWriter buffers written data; the object is uploaded on Close.
func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	parsed, err := parseS3Path(filePath)
	if err != nil {
		return nil, err
	}
	return &s3Writer{
		client: s.s3Client,
		bucket: parsed.bucket,
		key:    parsed.key,
		buf:    filebuffer.New(nil),
	}, nil
}

func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	parsed, err := parseS3Path(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	output, err := s.s3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(parsed.bucket),
		Key:    aws.String(parsed.key),
	})
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name: filePath,
		Size: aws.Int64Value(output.ContentLength),
	}, nil
}

func (s *S3FileSystem) Delete(filePath string) error {
	parsed, err := parseS3Path(filePath)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(parsed.bucket),
		Key:    aws.String(parsed.key),
	})
	return err
}

// Join joins path elements onto an s3:// URI, keeping a trailing slash
// on the final element.
func (s *S3FileSystem) Join(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}
	base := strings.TrimSuffix(elem[0], "/")
	parts := []string{base}
	for i, e := range elem[1:] {
		trimmed := strings.Trim(e, "/")
		if i == len(elem)-2 && strings.HasSuffix(e, "/") {
			trimmed += "/"
		}
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "/")
}

func (s *S3FileSystem) Init() error {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return err
	}
	s.s3Client = s3.New(sess)
	return nil
}
