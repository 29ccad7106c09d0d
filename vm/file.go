package vm

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// File: character stream behind a vtable
// ---------------------------------------------------------------------------

// FileOps is the operation table behind a File. The parser and the natives
// only ever use these operations.
type FileOps interface {
	// Getch returns the next byte, or -1 at end of input.
	Getch() int
	// Ungetch pushes c back so the next Getch returns it.
	Ungetch(c int)
	Putch(c int) error
	Flush() error
	Close() error
	Seek(offset int64, whence int) (int64, error)
	EOF() bool
	Write(p []byte) (int, error)
}

// File is a script-visible stream.
type File struct {
	Header
	Ops    FileOps
	Name   *String
	closed bool
}

var fileType = &Type{
	Name: "file",
	Mark: func(vm *VM, o Object) int {
		if f := o.(*File); f.Name != nil {
			vm.Mark(f.Name)
		}
		return 48
	},
	Fetch: func(vm *VM, o, k Object) (Object, error) {
		f := o.(*File)
		if s, ok := k.(*String); ok {
			switch s.S {
			case "name":
				return f.Name, nil
			case "eof":
				n := vm.Bool(f.Ops.EOF())
				n.Decref()
				return n, nil
			}
		}
		return Null, nil
	},
	ObjName: func(vm *VM, o Object) string {
		return "file " + o.(*File).Name.S
	},
}

// ErrFileClosed is returned by operations on a closed File.
var ErrFileClosed = errors.New("file is closed")

// NewFile wraps ops under name.
func (vm *VM) NewFile(ops FileOps, name string) *File {
	n := vm.NewString(name)
	f := &File{Header: Header{tag: TagFile}, Ops: ops, Name: n}
	vm.rego(f, 48)
	n.Decref()
	return f
}

// StringFile returns a read-only file over src.
func (vm *VM) StringFile(name, src string) *File {
	return vm.NewFile(&stringFile{src: src}, name)
}

// ReaderFile returns a buffered file reading from r and writing to w.
// Either may be nil.
func (vm *VM) ReaderFile(name string, r io.Reader, w io.Writer) *File {
	sf := &streamFile{closer: r}
	if r != nil {
		sf.r = bufio.NewReader(r)
	}
	if w != nil {
		sf.w = bufio.NewWriter(w)
	}
	return vm.NewFile(sf, name)
}

// OpenFile opens a file on disk for reading.
func (vm *VM) OpenFile(path string) (*File, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return vm.ReaderFile(path, fp, nil), nil
}

// Getch reads one byte.
func (f *File) Getch() int {
	if f.closed {
		return -1
	}
	return f.Ops.Getch()
}

// Ungetch pushes back one byte.
func (f *File) Ungetch(c int) {
	if !f.closed && c >= 0 {
		f.Ops.Ungetch(c)
	}
}

// Close closes the underlying stream once.
func (f *File) Close() error {
	if f.closed {
		return ErrFileClosed
	}
	f.closed = true
	return f.Ops.Close()
}

// WriteString writes s and flushes.
func (f *File) WriteString(s string) error {
	if f.closed {
		return ErrFileClosed
	}
	if _, err := f.Ops.Write([]byte(s)); err != nil {
		return err
	}
	return f.Ops.Flush()
}

// stringFile reads from an in-memory string.
type stringFile struct {
	src string
	pos int
}

func (s *stringFile) Getch() int {
	if s.pos >= len(s.src) {
		s.pos = len(s.src) + 1
		return -1
	}
	c := s.src[s.pos]
	s.pos++
	return int(c)
}

func (s *stringFile) Ungetch(c int) {
	if s.pos > 0 {
		s.pos--
	}
}

func (s *stringFile) Putch(c int) error { return errors.New("attempt to write to a string file") }
func (s *stringFile) Flush() error      { return nil }
func (s *stringFile) Close() error      { return nil }
func (s *stringFile) EOF() bool         { return s.pos > len(s.src) }

func (s *stringFile) Seek(offset int64, whence int) (int64, error) {
	r := strings.NewReader(s.src)
	r.Seek(int64(s.pos), io.SeekStart)
	n, err := r.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = int(n)
	return n, nil
}

func (s *stringFile) Write(p []byte) (int, error) {
	return 0, errors.New("attempt to write to a string file")
}

// streamFile adapts buffered Go streams.
type streamFile struct {
	back   []byte
	r      *bufio.Reader
	w      *bufio.Writer
	closer any
	eof    bool
}

func (s *streamFile) Getch() int {
	if n := len(s.back); n > 0 {
		c := s.back[n-1]
		s.back = s.back[:n-1]
		return int(c)
	}
	if s.r == nil {
		return -1
	}
	b, err := s.r.ReadByte()
	if err != nil {
		s.eof = true
		return -1
	}
	return int(b)
}

func (s *streamFile) Ungetch(c int) {
	s.back = append(s.back, byte(c))
	s.eof = false
}

func (s *streamFile) Putch(c int) error {
	if s.w == nil {
		return errors.New("file not open for writing")
	}
	return s.w.WriteByte(byte(c))
}

func (s *streamFile) Flush() error {
	if s.w == nil {
		return nil
	}
	return s.w.Flush()
}

func (s *streamFile) Close() error {
	err := s.Flush()
	if c, ok := s.closer.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *streamFile) Seek(offset int64, whence int) (int64, error) {
	sk, ok := s.closer.(io.Seeker)
	if !ok {
		return 0, errors.New("file does not support seeking")
	}
	n, err := sk.Seek(offset, whence)
	if err == nil && s.r != nil {
		s.r.Reset(s.closer.(io.Reader))
		s.back = s.back[:0]
		s.eof = false
	}
	return n, err
}

func (s *streamFile) EOF() bool { return s.eof }

func (s *streamFile) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, errors.New("file not open for writing")
	}
	return s.w.Write(p)
}
