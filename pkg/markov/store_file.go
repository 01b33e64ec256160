package markov

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// fileHeaderPrefix starts the first line of every chain file, followed by the
// chain's order: "markov-chain v1 order=2".
const fileHeaderPrefix = "markov-chain v1 order="

// fileRecord is the on-disk form of a Record: one JSON object per line.
type fileRecord struct {
	Context []wireToken `json:"context"`
	Token   wireToken   `json:"token"`
	Count   int         `json:"count"`
}

// FileStore keeps one file per chain order inside Directory, named
// "<order><Extension>" (e.g. "2.markov").
//
// A file holds a header line followed by one JSON record per line, each
// naming a context, a token observed after it, and its count. Records are
// written sorted, but any order loads to the same chain and duplicate
// records are summed. Tokens that are not valid UTF-8 are written as base64
// objects, so every token round-trips byte for byte. Lines have no length
// limit.
type FileStore struct {
	Directory string
	Extension string
}

// NewFileStore returns a FileStore rooted at dir using extension ext.
func NewFileStore(dir, ext string) *FileStore {
	return &FileStore{Directory: dir, Extension: ext}
}

// Path returns the file used for chains of the given order.
func (s *FileStore) Path(order int) string {
	return filepath.Join(s.Directory, strconv.Itoa(order)+s.Extension)
}

// Save writes c to its order's file. The file is rendered in memory and then
// swapped in atomically, so the previous file stays intact on any failure.
func (s *FileStore) Save(_ context.Context, c *Chain) error {
	var buf bytes.Buffer
	buf.WriteString(fileHeaderPrefix)
	buf.WriteString(strconv.Itoa(c.Order()))
	buf.WriteByte('\n')

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	for _, r := range c.Records() {
		if err := encoder.Encode(fileRecord{Context: toWire(r.Context), Token: wireToken(r.Token), Count: r.Count}); err != nil {
			return fmt.Errorf("%w: could not encode record: %v", ErrIoFailure, err)
		}
	}

	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return fmt.Errorf("%w: could not create directory %q: %v", ErrIoFailure, s.Directory, err)
	}
	path := s.Path(c.Order())
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("%w: could not write %q: %v", ErrIoFailure, path, err)
	}
	return nil
}

// Load reads the chain saved for order.
func (s *FileStore) Load(_ context.Context, order int) (*Chain, error) {
	c, err := NewChain(order)
	if err != nil {
		return nil, err
	}

	path := s.Path(order)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: could not open %q: %v", ErrIoFailure, path, err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	reader := bufio.NewReader(file)
	header, err := readLine(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: missing header", ErrCorruptData, path)
		}
		return nil, fmt.Errorf("%w: could not read %q: %v", ErrIoFailure, path, err)
	}
	if err = checkHeader(string(header), order); err != nil {
		return nil, fmt.Errorf("%w: %s:1: %v", ErrCorruptData, path, err)
	}

	for lineNo := 2; ; lineNo++ {
		line, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: could not read %q: %v", ErrIoFailure, path, err)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r, err := parseRecord(line, c.ContextLen())
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrCorruptData, path, lineNo, err)
		}
		if r.Count > 0 {
			c.add(fromWire(r.Context), string(r.Token), r.Count)
		}
	}

	return c, nil
}

// readLine returns the next line of r without its line ending. A last line
// without a newline is still returned; io.EOF means no bytes were left.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

func checkHeader(line string, order int) error {
	rest, ok := strings.CutPrefix(line, fileHeaderPrefix)
	if !ok {
		return fmt.Errorf("unrecognized header %q", line)
	}
	got, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("invalid order in header %q", line)
	}
	if got != order {
		return fmt.Errorf("header order %d does not match requested order %d", got, order)
	}
	return nil
}

func parseRecord(line []byte, contextLen int) (fileRecord, error) {
	// Pointers tell a missing field apart from a zero value.
	var raw struct {
		Context []wireToken `json:"context"`
		Token   *wireToken  `json:"token"`
		Count   *int        `json:"count"`
	}
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return fileRecord{}, fmt.Errorf("invalid record: %v", err)
	}
	if decoder.More() {
		return fileRecord{}, errors.New("trailing data after record")
	}
	switch {
	case raw.Token == nil:
		return fileRecord{}, errors.New("record has no token")
	case raw.Count == nil:
		return fileRecord{}, errors.New("record has no count")
	case *raw.Count < 0:
		return fileRecord{}, fmt.Errorf("negative count %d", *raw.Count)
	case len(raw.Context) != contextLen:
		return fileRecord{}, fmt.Errorf("context has %d tokens, want %d", len(raw.Context), contextLen)
	}
	return fileRecord{Context: raw.Context, Token: *raw.Token, Count: *raw.Count}, nil
}
