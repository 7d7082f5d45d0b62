package collab

import (
	"fmt"

	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/history"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
)

// Session 一个文档的权威内容：当前文本、版本号、在线用户的光标。
// 只能通过 ApplyOperation 修改；不是并发安全的，调用方按文档加锁串行调用。
type Session struct {
	docID    string
	buf      Buffer
	version  int
	presence *presence.Tracker
	history  *history.VersionHistory
}

func NewSession(docID, initial string) *Session {
	return &Session{
		docID:    docID,
		buf:      NewPieceTable(initial),
		presence: presence.NewTracker(),
		history:  history.NewVersionHistory(initial),
	}
}

func (s *Session) DocID() string                     { return s.docID }
func (s *Session) Content() string                   { return s.buf.String() }
func (s *Session) Len() int                          { return s.buf.Len() }
func (s *Session) Version() int                      { return s.version }
func (s *Session) History() *history.VersionHistory  { return s.history }
func (s *Session) Presence() []presence.UserPresence { return s.presence.Snapshot() }

// ApplyOperation 应用 op 并返回新版本号。
// op.BaseLen() 与当前内容长度不一致时返回 ErrStaleOperation，内容不变。
func (s *Session) ApplyOperation(op *delta.Operation, author crdt.ReplicaID) (int, error) {
	return s.ApplyLabeled(op, author, "")
}

// ApplyLabeled 同 ApplyOperation，历史记录里附带标签
func (s *Session) ApplyLabeled(op *delta.Operation, author crdt.ReplicaID, label string) (int, error) {
	if op.BaseLen() != s.buf.Len() {
		return s.version, fmt.Errorf("%w: doc=%s base_len=%d content_len=%d version=%d",
			ErrStaleOperation, s.docID, op.BaseLen(), s.buf.Len(), s.version)
	}
	if err := s.buf.Apply(op); err != nil {
		return s.version, fmt.Errorf("apply to doc %s: %w", s.docID, err)
	}
	s.version++
	s.history.AddVersion(op, author, label)
	s.presence.TransformAllThroughOp(op, author)
	return s.version, nil
}

// AddUser 加入或替换用户；光标、选区必须落在文档内
func (s *Session) AddUser(p presence.UserPresence) error {
	if err := s.checkPresence(p); err != nil {
		return err
	}
	return s.presence.Add(p)
}

func (s *Session) RemoveUser(userID uint64) bool { return s.presence.Remove(userID) }

func (s *Session) User(userID uint64) (presence.UserPresence, bool) { return s.presence.Get(userID) }

func (s *Session) SetCursor(userID uint64, offset int) error {
	if offset > s.buf.Len() {
		return &delta.OutOfBoundsError{Expected: s.buf.Len(), Actual: offset}
	}
	return s.presence.SetCursor(userID, offset)
}

func (s *Session) SetSelection(userID uint64, start, end int) error {
	if n := s.buf.Len(); start > n || end > n {
		return &delta.OutOfBoundsError{Expected: n, Actual: max(start, end)}
	}
	return s.presence.SetSelection(userID, start, end)
}

func (s *Session) checkPresence(p presence.UserPresence) error {
	n := s.buf.Len()
	if p.Cursor != nil && *p.Cursor > n {
		return &delta.OutOfBoundsError{Expected: n, Actual: *p.Cursor}
	}
	if p.Selection != nil && (p.Selection.Start > n || p.Selection.End > n) {
		return &delta.OutOfBoundsError{Expected: n, Actual: max(p.Selection.Start, p.Selection.End)}
	}
	return nil
}
