package convo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const dateLayout = "2006-01-02"

func (s *Store) dailyLogPath(guild string, date time.Time) string {
	return filepath.Join(s.guildDir(guild), "memory", date.Format(dateLayout)+".md")
}

func (s *Store) notesPath(guild string) string {
	return filepath.Join(s.guildDir(guild), "MEMORY.md")
}

// AppendDailyLog appends an entry to the guild's daily log for the
// given date, creating the file (and memory/ dir) as needed. Existing
// entries are never overwritten.
func (s *Store) AppendDailyLog(guild string, date time.Time, entry string) error {
	path := s.dailyLogPath(guild, date)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open daily log: %w", err)
	}
	defer f.Close()

	stamp := time.Now().Format("15:04")
	if _, err := fmt.Fprintf(f, "## %s\n\n%s\n\n", stamp, entry); err != nil {
		return fmt.Errorf("append daily log: %w", err)
	}
	return nil
}

// ReadDailyLog returns the guild's daily log for a date, or "" if none
// exists yet.
func (s *Store) ReadDailyLog(guild string, date time.Time) (string, error) {
	data, err := os.ReadFile(s.dailyLogPath(guild, date))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read daily log: %w", err)
	}
	return string(data), nil
}

// ReadNotes returns the guild's permanent notes (MEMORY.md), or "" if
// none exist yet.
func (s *Store) ReadNotes(guild string) (string, error) {
	data, err := os.ReadFile(s.notesPath(guild))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(data), nil
}

// WriteNotes replaces the guild's permanent notes.
func (s *Store) WriteNotes(guild, content string) error {
	path := s.notesPath(guild)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create guild dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}
	return nil
}

// GuildPrefix returns the workspace-relative path prefix for a guild,
// used to scope search results to one tenant. Empty guild (standalone
// mode) has no prefix.
func GuildPrefix(guild string) string {
	if guild == "" {
		return ""
	}
	return "guilds/" + normalizeKey(guild) + "/"
}
