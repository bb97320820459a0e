package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"wildchain/internal/protocol"
	"wildchain/internal/sim/mirror"
)

const (
	KindSnapshot = "snapshot"
	KindEvent    = "event"
	KindAudit    = "audit"
)

// Entry is one journaled feed item. Exactly one payload field is set,
// matching Kind.
type Entry struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`

	Snapshot *protocol.TableMsg `json:"snapshot,omitempty"`
	Event    *protocol.Event    `json:"event,omitempty"`
	Audit    *mirror.AuditEntry `json:"audit,omitempty"`
}

// Writer appends zstd-compressed JSONL entries, rotating hourly.
type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// FeedJournal records everything the core applies plus its audits.
type FeedJournal struct {
	w *Writer
}

func NewFeedJournal(dataDir string) *FeedJournal {
	return &FeedJournal{w: NewWriter(filepath.Join(dataDir, "feed"), "feed")}
}

func (j *FeedJournal) RecordSnapshot(msg protocol.TableMsg) {
	_ = j.w.Write(Entry{At: time.Now().UTC(), Kind: KindSnapshot, Snapshot: &msg})
}

func (j *FeedJournal) RecordEvent(ev protocol.Event) {
	_ = j.w.Write(Entry{At: time.Now().UTC(), Kind: KindEvent, Event: &ev})
}

func (j *FeedJournal) RecordAudit(e mirror.AuditEntry) {
	_ = j.w.Write(Entry{At: time.Now().UTC(), Kind: KindAudit, Audit: &e})
}

func (j *FeedJournal) Close() error { return j.w.Close() }

// ListFiles returns all journal files for prefix in dir, oldest first.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile decodes every entry in one journal file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadDir decodes all journal entries for prefix in dir, oldest first.
func ReadDir(dir, prefix string) ([]Entry, error) {
	files, err := ListFiles(dir, prefix)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, path := range files {
		ents, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, ents...)
	}
	return out, nil
}
