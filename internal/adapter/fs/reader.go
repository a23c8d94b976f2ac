package fs

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"kge/internal/domain"
)

const initialRecordRead = 4096

// ReaderOptions configures a RecordReader.
type ReaderOptions struct {
	// Mmap maps the file into memory instead of issuing pread calls.
	Mmap bool

	// MaxRecordBytes bounds the length of a single record. Zero means 4 MiB.
	MaxRecordBytes int
}

// RecordReader reads newline-terminated records starting at byte offsets.
// Every read is positioned, so one RecordReader is safe for concurrent use.
type RecordReader struct {
	path      string
	f         *os.File
	data      []byte
	size      int64
	maxRecord int
}

// OpenReader opens path for positioned record reads.
func OpenReader(path string, opts ReaderOptions) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &RecordReader{
		path:      path,
		f:         f,
		size:      info.Size(),
		maxRecord: opts.MaxRecordBytes,
	}
	if r.maxRecord <= 0 {
		r.maxRecord = 4 << 20
	}

	if opts.Mmap && r.size > 0 {
		data, err := mmapFile(f, r.size)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
		}
		r.data = data
	}

	return r, nil
}

// ReadRecord returns the line starting at offset without its line terminator.
func (r *RecordReader) ReadRecord(offset int64) ([]byte, error) {
	if offset < 0 || offset >= r.size {
		return nil, fmt.Errorf("offset %d outside %s (size %d)", offset, r.path, r.size)
	}

	var line []byte
	if r.data != nil {
		rest := r.data[offset:]
		end := bytes.IndexByte(rest, '\n')
		if end < 0 {
			end = len(rest)
		}
		if end > r.maxRecord {
			return nil, fmt.Errorf("%w: record at offset %d", domain.ErrRecordTooLarge, offset)
		}
		line = append([]byte(nil), rest[:end]...)
	} else {
		var err error
		line, err = r.preadLine(offset)
		if err != nil {
			return nil, err
		}
	}

	return bytes.TrimSuffix(line, []byte{'\r'}), nil
}

func (r *RecordReader) preadLine(offset int64) ([]byte, error) {
	buf := make([]byte, initialRecordRead)
	var line []byte
	pos := offset

	for {
		n, err := r.f.ReadAt(buf, pos)
		chunk := buf[:n]
		if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
			line = append(line, chunk[:i]...)
			break
		}
		line = append(line, chunk...)
		pos += int64(n)

		if len(line) > r.maxRecord {
			return nil, fmt.Errorf("%w: record at offset %d", domain.ErrRecordTooLarge, offset)
		}
		if err == io.EOF || pos >= r.size {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at %d: %w", r.path, pos, err)
		}
		if len(buf) < r.maxRecord {
			buf = make([]byte, len(buf)*2)
		}
	}

	if len(line) > r.maxRecord {
		return nil, fmt.Errorf("%w: record at offset %d", domain.ErrRecordTooLarge, offset)
	}
	return line, nil
}

// Size returns the size of the underlying file in bytes.
func (r *RecordReader) Size() int64 {
	return r.size
}

// Mapped reports whether reads are served from a memory mapping.
func (r *RecordReader) Mapped() bool {
	return r.data != nil
}

// Close releases the mapping and the file handle.
func (r *RecordReader) Close() error {
	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}
