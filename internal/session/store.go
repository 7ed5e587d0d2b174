// Package session 持久化聊天记录，供 chat --resume 继续对话。
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"bankchat/internal/agent"

	"github.com/google/uuid"
)

// ErrNoSessions 表示目录中没有可恢复的会话。
var ErrNoSessions = errors.New("no sessions found")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Record struct {
	ID       string          `json:"id"`
	Model    string          `json:"model,omitempty"`
	Messages []agent.Message `json:"messages"`
	Updated  time.Time       `json:"updated"`
}

// Title 返回首条用户消息的摘要。
func (r Record) Title() string {
	for _, m := range r.Messages {
		if m.Role != agent.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(m.Content), " ")
		if len([]rune(text)) > 60 {
			return string([]rune(text)[:57]) + "..."
		}
		return text
	}
	return "(empty)"
}

// Store 以每个会话一个 JSON 文件的形式保存在 Dir 下。
type Store struct {
	Dir string
}

// DefaultDir 返回 ~/.bankchat/sessions。
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bankchat", "sessions"), nil
}

func NewDefault() (*Store, error) {
	d, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: d}, nil
}

func (s *Store) path(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(s.Dir, id+".json"), nil
}

// Save 写入会话，id 为空时生成新 ID，返回实际 ID。
func (s *Store) Save(id, model string, messages []agent.Message) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	path, err := s.path(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	rec := Record{ID: id, Model: model, Messages: messages, Updated: time.Now().UTC()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Load(id string) (Record, error) {
	var rec Record
	path, err := s.path(id)
	if err != nil {
		return rec, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

// Last 返回最近更新的会话。
func (s *Store) Last() (Record, error) {
	records, err := s.List()
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNoSessions
	}
	return records[0], nil
}

// List 返回所有可解析的会话，按更新时间倒序；损坏的文件被跳过。
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Updated.After(records[j].Updated)
	})
	return records, nil
}
