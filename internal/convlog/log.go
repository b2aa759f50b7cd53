// Package convlog implements the durable conversation log: an append-only,
// shard-rotated JSONL record of every utterance with index-based range reads,
// plus the bounded raw-context window and its background summarization.
package convlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/pkg/types"
)

const indexFilename = "index.json"

// shardEntry describes one shard file in the log index. Shards are contiguous
// and gapless: each entry's EndIndex equals the next entry's StartIndex.
type shardEntry struct {
	Filename   string `json:"filename"`
	Count      int    `json:"count"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type logIndex struct {
	TotalCount int          `json:"total_count"`
	Files      []shardEntry `json:"files"`
}

// LogOptions bounds the log's shard size and in-memory recent window.
type LogOptions struct {
	// MaxFileLines is the record capacity of one shard file. A shard is
	// immutable once it reaches this count.
	MaxFileLines int

	// RecentLimit is the length of the in-memory recent window used to
	// answer tail reads without touching disk.
	RecentLimit int
}

func (o *LogOptions) applyDefaults() {
	if o.MaxFileLines <= 0 {
		o.MaxFileLines = 1000
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 50
	}
}

// Log is the durable, append-only conversation record. Appends go to the
// active shard; the index is persisted synchronously after every append so
// it never describes more records than exist on disk.
type Log struct {
	dir    string
	opts   LogOptions
	logger *logrus.Logger

	mu     sync.Mutex
	index  logIndex
	recent []types.ConversationItem
}

// OpenLog opens or creates a sharded log in dir. A missing or corrupt index
// degrades to an empty log with a warning, never a startup failure.
func OpenLog(dir string, opts LogOptions, logger *logrus.Logger) (*Log, error) {
	opts.applyDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	l := &Log{dir: dir, opts: opts, logger: logger}

	data, err := os.ReadFile(filepath.Join(dir, indexFilename))
	switch {
	case os.IsNotExist(err):
		// Fresh log.
	case err != nil:
		logger.WithError(err).Warn("convlog: reading index, starting empty")
	default:
		if err := json.Unmarshal(data, &l.index); err != nil {
			logger.WithError(err).Warn("convlog: corrupt index, starting empty")
			l.index = logIndex{}
		}
	}

	l.fillRecent()
	return l, nil
}

// fillRecent warms the recent window from the tail of the on-disk log.
func (l *Log) fillRecent() {
	start := l.index.TotalCount - l.opts.RecentLimit
	if start < 0 {
		start = 0
	}
	items, err := l.readFromShards(start, l.index.TotalCount)
	if err != nil {
		l.logger.WithError(err).Warn("convlog: warming recent window")
		return
	}
	l.recent = items
}

// Append writes the item to the active shard, rotating to a new shard when
// the active one is full, then persists the index and updates the recent
// window.
func (l *Log) Append(item types.ConversationItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.index.Files) == 0 || l.index.Files[len(l.index.Files)-1].Count >= l.opts.MaxFileLines {
		l.index.Files = append(l.index.Files, shardEntry{
			Filename:   fmt.Sprintf("history_%d.jsonl", len(l.index.Files)),
			StartIndex: l.index.TotalCount,
			EndIndex:   l.index.TotalCount,
		})
	}
	active := &l.index.Files[len(l.index.Files)-1]

	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, active.Filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write shard: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close shard: %w", err)
	}

	active.Count++
	active.EndIndex++
	l.index.TotalCount++

	if err := l.persistIndex(); err != nil {
		return err
	}

	l.recent = append(l.recent, item)
	if len(l.recent) > l.opts.RecentLimit {
		l.recent = l.recent[len(l.recent)-l.opts.RecentLimit:]
	}
	return nil
}

func (l *Log) persistIndex() error {
	data, err := json.MarshalIndent(l.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	path := filepath.Join(l.dir, indexFilename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("install index: %w", err)
	}
	return nil
}

// TotalCount reports the number of records ever appended.
func (l *Log) TotalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.TotalCount
}

// ReadRange returns records [start, end), clamped to the log bounds. Ranges
// fully inside the recent window are answered from memory; anything else is
// resolved by scanning the overlapping shards.
func (l *Log) ReadRange(start, end int) ([]types.ConversationItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start < 0 {
		start = 0
	}
	if end > l.index.TotalCount {
		end = l.index.TotalCount
	}
	if start >= end {
		return nil, nil
	}

	recentStart := l.index.TotalCount - len(l.recent)
	if start >= recentStart {
		out := make([]types.ConversationItem, end-start)
		copy(out, l.recent[start-recentStart:end-recentStart])
		return out, nil
	}

	return l.readFromShards(start, end)
}

// ReadNearest returns the most recent n records.
func (l *Log) ReadNearest(n int) ([]types.ConversationItem, error) {
	l.mu.Lock()
	total := l.index.TotalCount
	l.mu.Unlock()
	return l.ReadRange(total-n, total)
}

// readFromShards resolves [start, end) against the shard index. Callers hold
// l.mu or are initializing. Missing shard files and corrupt lines degrade to
// fewer records, never an error for the whole range.
func (l *Log) readFromShards(start, end int) ([]types.ConversationItem, error) {
	var out []types.ConversationItem
	for _, entry := range l.index.Files {
		if entry.EndIndex <= start || entry.StartIndex >= end {
			continue
		}
		from := start - entry.StartIndex
		if from < 0 {
			from = 0
		}
		to := end - entry.StartIndex
		if to > entry.Count {
			to = entry.Count
		}
		items := l.readShardLines(entry.Filename, from, to-from)
		out = append(out, items...)
	}
	return out, nil
}

// readShardLines reads count records from a shard starting at line offset.
// Hitting EOF early stops silently, tolerating truncated files. A corrupt
// line inside the window yields fewer records, never a record from past
// the window in its place.
func (l *Log) readShardLines(filename string, offset, count int) []types.ConversationItem {
	f, err := os.Open(filepath.Join(l.dir, filename))
	if err != nil {
		l.logger.WithError(err).WithField("shard", filename).Warn("convlog: shard unreadable, skipping")
		return nil
	}
	defer f.Close()

	var out []types.ConversationItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() && lineNo < offset+count {
		if lineNo < offset {
			lineNo++
			continue
		}
		lineNo++
		var item types.ConversationItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil {
			l.logger.WithField("shard", filename).WithField("line", lineNo).Warn("convlog: corrupt record skipped")
			continue
		}
		out = append(out, item)
	}
	return out
}
