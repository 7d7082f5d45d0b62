package history

import (
	"errors"
	"fmt"
	"time"

	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/ot/delta"
)

var ErrVersionOutOfRange = errors.New("VERSION_OUT_OF_RANGE")

type Entry struct {
	Version   int              `json:"version"` // 应用该操作之后的版本号
	Op        *delta.Operation `json:"op"`
	Replica   crdt.ReplicaID   `json:"replica"`
	Label     string           `json:"label,omitempty"`
	AppliedAt time.Time        `json:"appliedAt"`
}

// VersionHistory 只追加的操作日志 + 版本 0 的内容。
// 版本 v 表示依次应用前 v 个操作之后的内容。
type VersionHistory struct {
	baseline string
	entries  []Entry
}

func NewVersionHistory(initial string) *VersionHistory {
	return &VersionHistory{baseline: initial}
}

// AddVersion 追加一条记录，返回新版本号
func (h *VersionHistory) AddVersion(op *delta.Operation, replica crdt.ReplicaID, label string) int {
	v := len(h.entries) + 1
	h.entries = append(h.entries, Entry{
		Version:   v,
		Op:        op.Clone(),
		Replica:   replica,
		Label:     label,
		AppliedAt: time.Now(),
	})
	return v
}

// Len 当前版本号，即已记录的操作数
func (h *VersionHistory) Len() int { return len(h.entries) }

func (h *VersionHistory) Baseline() string { return h.baseline }

func (h *VersionHistory) Latest() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries 返回版本 from 之后的所有记录（版本 from+1 .. Len）
func (h *VersionHistory) Entries(from int) ([]Entry, error) {
	if from < 0 || from > len(h.entries) {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrVersionOutOfRange, from, len(h.entries))
	}
	out := make([]Entry, len(h.entries)-from)
	copy(out, h.entries[from:])
	return out, nil
}

// ContentAt 从基线回放到版本 v
func (h *VersionHistory) ContentAt(v int) (string, error) {
	if v < 0 || v > len(h.entries) {
		return "", fmt.Errorf("%w: %d not in [0,%d]", ErrVersionOutOfRange, v, len(h.entries))
	}
	content := h.baseline
	for _, e := range h.entries[:v] {
		next, err := delta.Apply(e.Op, content)
		if err != nil {
			return "", fmt.Errorf("replay version %d: %w", e.Version, err)
		}
		content = next
	}
	return content, nil
}

// UndoToVersion 返回一个作用于当前内容的操作，应用后内容回到版本 target。
// 从最新版本往回，逐个求逆（各自基于自己的前置状态）再依次合并。
func (h *VersionHistory) UndoToVersion(target int) (*delta.Operation, error) {
	if target < 0 || target > len(h.entries) {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrVersionOutOfRange, target, len(h.entries))
	}
	// 一次回放拿到每个操作的前置状态
	pre := make([]string, len(h.entries))
	content := h.baseline
	for i, e := range h.entries {
		pre[i] = content
		next, err := delta.Apply(e.Op, content)
		if err != nil {
			return nil, fmt.Errorf("replay version %d: %w", e.Version, err)
		}
		content = next
	}

	undo := delta.New().Retain(len([]rune(content)))
	for i := len(h.entries) - 1; i >= target; i-- {
		inv, err := delta.Invert(h.entries[i].Op, pre[i])
		if err != nil {
			return nil, fmt.Errorf("invert version %d: %w", h.entries[i].Version, err)
		}
		if undo, err = delta.Compose(undo, inv); err != nil {
			return nil, fmt.Errorf("compose inverse of version %d: %w", h.entries[i].Version, err)
		}
	}
	return undo, nil
}
