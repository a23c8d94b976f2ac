package fs

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kge/internal/domain"
)

func readerModes(t *testing.T) []bool {
	if runtime.GOOS == "windows" {
		return []bool{false}
	}
	return []bool{false, true}
}

func TestRecordReader_ReadRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.tsv")
	content := "resource/A\t0.1 0.2\nresource/B\t0.3 0.4\r\nresource/C\t0.5"
	writeFile(t, path, content)

	for _, mmap := range readerModes(t) {
		t.Run(fmt.Sprintf("mmap=%v", mmap), func(t *testing.T) {
			r, err := OpenReader(path, ReaderOptions{Mmap: mmap})
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, mmap, r.Mapped())
			assert.Equal(t, int64(len(content)), r.Size())

			line, err := r.ReadRecord(0)
			require.NoError(t, err)
			assert.Equal(t, "resource/A\t0.1 0.2", string(line))

			line, err = r.ReadRecord(int64(strings.Index(content, "resource/B")))
			require.NoError(t, err)
			assert.Equal(t, "resource/B\t0.3 0.4", string(line))

			line, err = r.ReadRecord(int64(strings.Index(content, "resource/C")))
			require.NoError(t, err)
			assert.Equal(t, "resource/C\t0.5", string(line))

			_, err = r.ReadRecord(int64(len(content)))
			assert.Error(t, err)
			_, err = r.ReadRecord(-1)
			assert.Error(t, err)
		})
	}
}

func TestRecordReader_LongRecordAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.tsv")
	long := "resource/Long\t" + strings.Repeat("0.5 ", 10000)
	writeFile(t, path, long+"\nresource/X\t1\n")

	for _, mmap := range readerModes(t) {
		t.Run(fmt.Sprintf("mmap=%v", mmap), func(t *testing.T) {
			r, err := OpenReader(path, ReaderOptions{Mmap: mmap})
			require.NoError(t, err)
			line, err := r.ReadRecord(0)
			require.NoError(t, err)
			assert.Equal(t, long, string(line))
			require.NoError(t, r.Close())

			small, err := OpenReader(path, ReaderOptions{Mmap: mmap, MaxRecordBytes: 1024})
			require.NoError(t, err)
			defer small.Close()
			_, err = small.ReadRecord(0)
			assert.ErrorIs(t, err, domain.ErrRecordTooLarge)

			line, err = small.ReadRecord(int64(len(long) + 1))
			require.NoError(t, err)
			assert.Equal(t, "resource/X\t1", string(line))
		})
	}
}

func TestRecordReader_ConcurrentReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.tsv")
	var sb strings.Builder
	offsets := make([]int64, 200)
	for i := range offsets {
		offsets[i] = int64(sb.Len())
		fmt.Fprintf(&sb, "resource/E%d\t%d.0 %d.5\n", i, i, i)
	}
	writeFile(t, path, sb.String())

	r, err := OpenReader(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	errs := make(chan error, len(offsets)*4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := len(offsets) - 1; i >= 0; i-- {
				line, err := r.ReadRecord(offsets[i])
				if err != nil {
					errs <- err
					continue
				}
				want := fmt.Sprintf("resource/E%d\t%d.0 %d.5", i, i, i)
				if string(line) != want {
					errs <- fmt.Errorf("offset %d: got %q want %q", offsets[i], line, want)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestOpenReader_Missing(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "missing.tsv"), ReaderOptions{})
	assert.Error(t, err)
}
