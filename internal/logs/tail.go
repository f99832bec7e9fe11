package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	chunkSize   = 64 * 1024
	defaultPoll = 250 * time.Millisecond
)

// Last returns up to n trailing lines of path and the file size, which is the
// offset to follow from. A missing file yields no lines.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	size := info.Size()
	if n <= 0 || size == 0 {
		return nil, size, nil
	}

	// Read backwards until n+1 newlines are buffered, enough for n full lines.
	var buf []byte
	pos := size
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		step := min(int64(chunkSize), pos)
		pos -= step
		part := make([]byte, step)
		if _, err := file.ReadAt(part, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		buf = append(part, buf...)
	}

	text := strings.TrimRight(string(buf), "\n")
	if text == "" {
		return nil, size, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, size, nil
}

// ReadFrom returns the complete lines after offset and the offset just past
// the last one. An offset beyond the end means the file was truncated and
// reading restarts at zero.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, chunkSize)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, offset, nil
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
}

// Follow polls path from offset and hands each new line to emit until ctx is
// done. If path starts resolving to a different file, following restarts at
// its beginning.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, emit func(string)) error {
	if poll <= 0 {
		poll = defaultPoll
	}
	current, _ := os.Stat(path)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			if current != nil && !os.SameFile(current, info) {
				offset = 0
			}
			current = info
			lines, next, err := ReadFrom(path, offset)
			if err != nil {
				return err
			}
			for _, line := range lines {
				emit(line)
			}
			offset = next
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("stat log file: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
