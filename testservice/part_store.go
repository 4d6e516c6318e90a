package testservice

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/handlerqueue/multipart-contract-tests/servicedef"
)

// PartInfo describes an uploaded file that has been written to temporary storage.
type PartInfo struct {
	Name        string
	FileName    string
	ContentType string
	Size        int64

	path string
}

func (p *PartInfo) String() string {
	return fmt.Sprintf("PartInfo{name='%s', fileName='%s', contentType='%s', size=%d}",
		p.Name, p.FileName, p.ContentType, p.Size)
}

// MoveTo moves the temporary file to dir/name, replacing any existing file.
func (p *PartInfo) MoveTo(dir, name string) error {
	if p.path == "" {
		return ioException("part %q has already been moved", p.Name)
	}
	dest := filepath.Join(dir, name)
	if err := os.Rename(p.path, dest); err != nil {
		// Rename fails across file systems, so fall back to copying.
		if err := copyFile(p.path, dest); err != nil {
			return ioException("could not move part %q to %s: %s", p.Name, dest, err)
		}
		_ = os.Remove(p.path)
	}
	p.path = ""
	return nil
}

func (p *PartInfo) discard() error {
	if p.path == "" {
		return nil
	}
	err := os.Remove(p.path)
	p.path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// IOException is the failure of a file operation. Its message begins with the exception class
// that the framework under test reports for the same failure, so that both produce the same
// log line.
type IOException struct {
	Message string
}

func (e *IOException) Error() string {
	return "java.io.IOException: " + e.Message
}

func ioException(format string, args ...interface{}) error {
	return &IOException{Message: fmt.Sprintf(format, args...)}
}

// readError wraps a failure to read the part from the request, as opposed to a failure to
// write it to storage.
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }

// partStore writes uploaded parts to temporary files.
type partStore struct {
	dir    string
	faults *faultSet
}

func (s *partStore) Save(part *multipart.Part) (*PartInfo, error) {
	info := &PartInfo{
		Name:        part.FormName(),
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
	}
	if s.faults.active(servicedef.FaultPartWriteFailure) {
		return nil, ioException("failed to write part %q to %s (injected fault)", info.Name, s.dir)
	}

	path := filepath.Join(s.dir, uuid.NewString()+".part")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, ioException("failed to create temporary file for part %q: %s", info.Name, err)
	}
	n, err := io.Copy(f, &sourceReader{r: part})
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(path)
		var re *readError
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, ioException("failed to write part %q: %s", info.Name, err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, ioException("failed to write part %q: %s", info.Name, closeErr)
	}
	info.Size = n
	info.path = path
	return info, nil
}

// sourceReader tags read errors so Save can tell them apart from write errors.
type sourceReader struct {
	r io.Reader
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &readError{err: err}
	}
	return n, err
}

// faultSet records which faults each open scope has injected.
type faultSet struct {
	byScope map[string]map[string]bool
	lock    sync.Mutex
}

func newFaultSet() *faultSet {
	return &faultSet{byScope: make(map[string]map[string]bool)}
}

func (f *faultSet) inject(scopeID, fault string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.byScope[scopeID] == nil {
		f.byScope[scopeID] = make(map[string]bool)
	}
	f.byScope[scopeID][fault] = true
}

func (f *faultSet) clear(scopeID string) {
	f.lock.Lock()
	delete(f.byScope, scopeID)
	f.lock.Unlock()
}

func (f *faultSet) active(fault string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, faults := range f.byScope {
		if faults[fault] {
			return true
		}
	}
	return false
}
