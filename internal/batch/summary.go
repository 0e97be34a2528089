package batch

import (
	"fmt"
	"sync"
)

// Failure records a file that could not be processed
type Failure struct {
	File string
	Err  error
}

// Summary counts the outcome of a batch run
type Summary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failures  []Failure

	mu sync.Mutex
}

// Failed returns the number of failed files
func (s *Summary) Failed() int {
	return len(s.Failures)
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d files: %d ok, %d skipped, %d failed", s.Total, s.Succeeded, s.Skipped, s.Failed())
}

func (s *Summary) succeed() {
	s.mu.Lock()
	s.Succeeded++
	s.mu.Unlock()
}

func (s *Summary) skip() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *Summary) fail(file string, err error) {
	s.mu.Lock()
	s.Failures = append(s.Failures, Failure{File: file, Err: err})
	s.mu.Unlock()
}
