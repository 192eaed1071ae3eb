package corfs

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

const s3Scheme = "s3://"

// FileSystem provides the storage backend for a job.
// The corpus is read from a file system, and shuffle and output data
// is written back to it. Remote stores like S3 sit behind the same interface.
type FileSystem interface {
	ListFiles(pathGlob string) ([]FileInfo, error)
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	Delete(filePath string) error
	Join(elem ...string) string
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem intializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) FileSystem {
	var fs FileSystem
	switch fsType {
	case S3:
		fs = &S3FileSystem{}
	default:
		fs = &LocalFileSystem{}
	}

	fs.Init()
	return fs
}

// InferFilesystemType returns the FileSystemType that serves location
func InferFilesystemType(location string) FileSystemType {
	if strings.HasPrefix(location, s3Scheme) {
		return S3
	}
	return Local
}

// InferFilesystem initializes the filesystem that serves location
func InferFilesystem(location string) FileSystem {
	return InitFilesystem(InferFilesystemType(location))
}

// ListInputs expands every input (file, directory or glob) into files, in
// order of first appearance. A file matched by several inputs is listed once.
func ListInputs(fs FileSystem, inputs []string) ([]FileInfo, error) {
	files := make([]FileInfo, 0)
	seen := make(map[string]bool)
	for _, input := range inputs {
		matched, err := fs.ListFiles(input)
		if err != nil {
			return nil, fmt.Errorf("listing input %s: %w", input, err)
		}
		if len(matched) == 0 {
			log.Warnf("Input %s matched no files", input)
		}
		for _, file := range matched {
			if seen[file.Name] {
				log.Debugf("Skipping %s, already listed", file.Name)
				continue
			}
			seen[file.Name] = true
			files = append(files, file)
		}
	}
	return files, nil
}
