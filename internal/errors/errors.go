package errors

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// FileError records one file that a fault barrier skipped.
type FileError struct {
	Task      string
	File      string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (fe *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", fe.Task, fe.File, fe.Err)
}

// Unwrap returns the original per-file error.
func (fe *FileError) Unwrap() error {
	return fe.Err
}

// ErrorCollector collects per-file errors from concurrent work.
type ErrorCollector struct {
	fileErrors []FileError
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		fileErrors: make([]FileError, 0),
	}
}

// Add records a skipped file. Nil errors are ignored.
func (ec *ErrorCollector) Add(task, file string, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.fileErrors = append(ec.fileErrors, FileError{
		Task:      task,
		File:      file,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// Files returns the paths of every skipped file in insertion order.
func (ec *ErrorCollector) Files() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	files := make([]string, 0, len(ec.fileErrors))
	for _, fe := range ec.fileErrors {
		files = append(files, fe.File)
	}
	return files
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.fileErrors) > 0
}

// Len returns the number of recorded errors.
func (ec *ErrorCollector) Len() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.fileErrors)
}

// Err combines every recorded error into one, or returns nil.
func (ec *ErrorCollector) Err() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var combined error
	for i := range ec.fileErrors {
		fe := ec.fileErrors[i]
		combined = multierr.Append(combined, &fe)
	}
	return combined
}
