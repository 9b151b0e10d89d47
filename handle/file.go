// File: handle/file.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"github.com/momentics/allio/internal/platform"
	"github.com/momentics/allio/object"
)

// File is a regular file handle.
type File struct {
	Handle[FileKind]
}

// Open opens or creates the file at path.
func (f *File) Open(path string, access object.AccessMode, disposition object.Disposition, opts ...object.Option) error {
	p := &object.OpenFileParams{Path: path, Access: access, Disposition: disposition, Options: object.NewOptions(opts...)}
	return create(&f.Handle, p, platform.OpenFile)
}

func (f *File) stream(b []byte, opts []object.Option) *object.StreamParams {
	return &object.StreamParams{Buffer: b, Options: object.NewOptions(opts...)}
}

func (f *File) positional(b []byte, off int64, opts []object.Option) *object.RandomAccessParams {
	return &object.RandomAccessParams{Buffer: b, Offset: off, Options: object.NewOptions(opts...)}
}

func (f *File) readDirect(p *object.StreamParams) (int, error) {
	return platform.Read(f.native, p.Buffer, p.Deadline)
}

func (f *File) writeDirect(p *object.StreamParams) (int, error) {
	return platform.Write(f.native, p.Buffer, p.Deadline)
}

func (f *File) readAtDirect(p *object.RandomAccessParams) (int, error) {
	return platform.ReadAt(f.native, p.Buffer, p.Offset)
}

func (f *File) writeAtDirect(p *object.RandomAccessParams) (int, error) {
	return platform.WriteAt(f.native, p.Buffer, p.Offset)
}

// Read reads at the current file position.
func (f *File) Read(b []byte, opts ...object.Option) (int, error) {
	return run(&f.Handle, object.Read, f.stream(b, opts), f.readDirect, transferred)
}

func (f *File) ReadAsync(b []byte, opts ...object.Option) (*Pending[int], error) {
	return start(&f.Handle, object.Read, f.stream(b, opts), f.readDirect, transferred)
}

// Write writes at the current file position.
func (f *File) Write(b []byte, opts ...object.Option) (int, error) {
	return run(&f.Handle, object.Write, f.stream(b, opts), f.writeDirect, transferred)
}

func (f *File) WriteAsync(b []byte, opts ...object.Option) (*Pending[int], error) {
	return start(&f.Handle, object.Write, f.stream(b, opts), f.writeDirect, transferred)
}

// ReadAt reads at off without moving the file position.
func (f *File) ReadAt(b []byte, off int64, opts ...object.Option) (int, error) {
	return run(&f.Handle, object.ReadAt, f.positional(b, off, opts), f.readAtDirect, transferred)
}

func (f *File) ReadAtAsync(b []byte, off int64, opts ...object.Option) (*Pending[int], error) {
	return start(&f.Handle, object.ReadAt, f.positional(b, off, opts), f.readAtDirect, transferred)
}

// WriteAt writes at off without moving the file position.
func (f *File) WriteAt(b []byte, off int64, opts ...object.Option) (int, error) {
	return run(&f.Handle, object.WriteAt, f.positional(b, off, opts), f.writeAtDirect, transferred)
}

func (f *File) WriteAtAsync(b []byte, off int64, opts ...object.Option) (*Pending[int], error) {
	return start(&f.Handle, object.WriteAt, f.positional(b, off, opts), f.writeAtDirect, transferred)
}
