package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single transcript line. Tool results can be large.
const maxLineSize = 10 * 1024 * 1024

// Read parses the JSONL transcript at path.
//
// A missing file yields no entries and no error. Lines that are blank, longer
// than maxLineSize or fail to parse are skipped; the rest are returned in file
// order. Only a failure to read the file itself is reported.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var entries []Entry
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := readLine(r, maxLineSize)
		if line != nil {
			var e Entry
			if jsonErr := json.Unmarshal(line, &e); jsonErr == nil {
				entries = append(entries, e)
			}
		}
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
	}
}

// readLine returns the next line without its terminator. A blank line or one
// longer than limit is consumed and returned as nil.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var buf []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > limit+1 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && (err != io.EOF || (len(buf) == 0 && !oversized)) {
			return nil, err
		}
		buf = bytes.TrimRight(buf, "\r\n")
		if oversized || len(buf) == 0 {
			return nil, err
		}
		return buf, err
	}
}
