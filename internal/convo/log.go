// Package convo provides file-backed raw conversation storage keyed by
// (guild, channel): append-only JSONL transcripts, dated daily logs and
// permanent notes, plus the compaction that keeps transcripts bounded.
package convo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Message is a single conversation entry. Transcripts are append-only;
// compaction is the only writer that rewrites a log wholesale.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Speaker returns the display name used when rendering "speaker: text".
func (m Message) Speaker() string {
	if m.Author != "" {
		return m.Author
	}
	return m.Role
}

// ChannelRef identifies one transcript.
type ChannelRef struct {
	Guild   string
	Channel string
}

// Store is the raw log storage rooted at a workspace directory.
// Layout: <root>/[guilds/<guild>/]sessions/<channel>.jsonl alongside
// MEMORY.md and memory/YYYY-MM-DD.md for the same guild.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per (guild, channel)
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

// Root returns the workspace directory.
func (s *Store) Root() string { return s.root }

func (s *Store) lockFor(guild, channel string) *sync.Mutex {
	key := normalizeKey(guild) + "/" + normalizeKey(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// guildDir maps a guild ID to its directory. The empty guild is the
// workspace root itself (standalone mode).
func (s *Store) guildDir(guild string) string {
	if guild == "" {
		return s.root
	}
	return filepath.Join(s.root, "guilds", normalizeKey(guild))
}

func (s *Store) transcriptPath(guild, channel string) string {
	return filepath.Join(s.guildDir(guild), "sessions", normalizeKey(channel)+".jsonl")
}

// Append adds a message to a channel transcript.
func (s *Store) Append(guild, channel string, msg Message) error {
	lock := s.lockFor(guild, channel)
	lock.Lock()
	defer lock.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	path := s.transcriptPath(guild, channel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// All returns the full transcript for a channel. A missing transcript
// is an empty log, not an error; corrupt lines are skipped.
func (s *Store) All(guild, channel string) ([]Message, error) {
	lock := s.lockFor(guild, channel)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(guild, channel)
}

func (s *Store) readLocked(guild, channel string) ([]Message, error) {
	f, err := os.Open(s.transcriptPath(guild, channel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			// Corrupt line: drop it rather than fail the read.
			continue
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return msgs, fmt.Errorf("scan transcript: %w", err)
	}
	return msgs, nil
}

// Recent returns the last n messages of a channel transcript.
func (s *Store) Recent(guild, channel string, n int) ([]Message, error) {
	msgs, err := s.All(guild, channel)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// Count returns the number of messages in a channel transcript.
func (s *Store) Count(guild, channel string) (int, error) {
	msgs, err := s.All(guild, channel)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// ReplaceAll rewrites a channel transcript with the given messages.
func (s *Store) ReplaceAll(guild, channel string, msgs []Message) error {
	lock := s.lockFor(guild, channel)
	lock.Lock()
	defer lock.Unlock()
	return s.writeLocked(guild, channel, msgs)
}

func (s *Store) writeLocked(guild, channel string, msgs []Message) error {
	path := s.transcriptPath(guild, channel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	var buf strings.Builder
	for _, m := range msgs {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	// Write-then-rename so a crash never leaves a half-written log.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

// Rewrite applies fn to the full transcript under the channel lock,
// holding it for the duration so no append interleaves with the
// rewrite. fn returns the replacement log and whether to apply it.
func (s *Store) Rewrite(guild, channel string, fn func(msgs []Message) ([]Message, bool, error)) error {
	lock := s.lockFor(guild, channel)
	lock.Lock()
	defer lock.Unlock()

	msgs, err := s.readLocked(guild, channel)
	if err != nil {
		return err
	}

	out, apply, err := fn(msgs)
	if err != nil || !apply {
		return err
	}
	return s.writeLocked(guild, channel, out)
}

// ListChannels enumerates all transcripts under the workspace.
func (s *Store) ListChannels() ([]ChannelRef, error) {
	var refs []ChannelRef

	collect := func(guild, dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
				continue
			}
			refs = append(refs, ChannelRef{
				Guild:   guild,
				Channel: strings.TrimSuffix(e.Name(), ".jsonl"),
			})
		}
	}

	collect("", filepath.Join(s.root, "sessions"))

	guilds, err := os.ReadDir(filepath.Join(s.root, "guilds"))
	if err != nil {
		if os.IsNotExist(err) {
			return refs, nil
		}
		return refs, err
	}
	for _, g := range guilds {
		if !g.IsDir() {
			continue
		}
		collect(g.Name(), filepath.Join(s.root, "guilds", g.Name(), "sessions"))
	}
	return refs, nil
}

// RenderMessages renders a transcript segment as "speaker: text" lines.
func RenderMessages(msgs []Message) string {
	var lines []string
	for _, m := range msgs {
		lines = append(lines, m.Speaker()+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

var invalidKeyChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// normalizeKey converts a guild/channel ID into a safe path component:
// lowercase, [a-z0-9_-], max 64 chars, "default" when empty.
func normalizeKey(id string) string {
	trimmed := strings.ToLower(strings.TrimSpace(id))
	if trimmed == "" {
		return "default"
	}
	result := invalidKeyChars.ReplaceAllString(trimmed, "-")
	result = strings.Trim(result, "-")
	if len(result) > 64 {
		result = result[:64]
	}
	if result == "" {
		return "default"
	}
	return result
}
