package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"collabcore/backend/internal/conflict"
	"collabcore/backend/internal/crdt"
	"collabcore/backend/internal/history"
	"collabcore/backend/internal/ot/delta"
	"collabcore/backend/internal/presence"
)

// 协作引擎接口，ws 和 httpapi 只依赖它
type Service interface {
	CreateDocument(ctx context.Context, ownerID uint64, title, initial string) (string, error)
	GetDocumentID(ctx context.Context, title string) (string, error)

	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevision uint64, clientID string, clientSeq uint64,
		op *delta.Operation) (AppliedOp, error)

	CurrentRevision(ctx context.Context, docID string) (uint64, error)
	LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error)
	// 用于握手/追平
	OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error)
	ContentAt(ctx context.Context, docID string, revision uint64) (string, error)
	Undo(ctx context.Context, docID string, authorID uint64, clientID string, targetRevision uint64) (AppliedOp, error)
	SaveSnapshot(ctx context.Context, docID string) error

	Join(ctx context.Context, docID string, p presence.UserPresence) ([]presence.UserPresence, error)
	Leave(ctx context.Context, docID string, userID uint64) error
	UpdateCursor(ctx context.Context, docID string, userID uint64, cursor int, sel *presence.Selection) ([]presence.UserPresence, error)
	Presence(ctx context.Context, docID string) ([]presence.UserPresence, error)

	MergeField(ctx context.Context, docID, field string, authorID uint64, remote *crdt.State) (*crdt.State, error)
	Field(ctx context.Context, docID, field string) (*crdt.State, error)
}

// 快照存储接口，实现在 store 中
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error
	LatestSnapshot(ctx context.Context, docID string) (content string, rev uint64, found bool, err error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error)
	GetDocumentID(ctx context.Context, title string) (string, error)
	DocumentExists(ctx context.Context, docID string) (bool, error)
}

// 可选：快照存储支持清理时，自动快照之后只保留最近 SnapshotKeep 个
type SnapshotPruner interface {
	Prune(ctx context.Context, docID string, keep int) (int64, error)
}

// AppliedListener 在文档锁内按版本顺序收到每个已应用的操作和重映射后的在线用户。
// 实现不能阻塞，也不能回调 Service。
type AppliedListener interface {
	OpApplied(docID string, applied AppliedOp, members []presence.UserPresence)
}

// CRDT 字段的持久化，data 是 crdt.State 的 JSON
type FieldStore interface {
	SaveField(ctx context.Context, docID, field string, data []byte) error
	LoadField(ctx context.Context, docID, field string) ([]byte, bool, error)
}

// 撤销产生的操作带这个前缀的标签，后面是目标版本
const UndoLabelPrefix = "undo:"

type AppliedOp struct {
	OperationID  string           `json:"operationId"` // 本次操作的唯一ID（用于幂等/追踪）
	Revision     uint64           `json:"revision"`    // 应用后的文档版本
	BaseRevision uint64           `json:"baseRevision"`
	AuthorID     uint64           `json:"authorId"`
	ClientID     string           `json:"clientId,omitempty"`
	ClientSeq    uint64           `json:"clientSeq,omitempty"`
	Op           *delta.Operation `json:"op"` // transform 之后实际应用的操作
	Label        string           `json:"label,omitempty"`
	AppliedAt    time.Time        `json:"appliedAt"`
}

type ServiceOptions struct {
	RingCap int // 近期操作环形缓冲容量
	// 每应用多少个操作自动保存一次快照，0 表示不自动保存
	SnapshotEvery int
	// 允许 transform 追赶的最大版本差，0 表示不限制
	MaxTransformWindow uint64
	PublishTimeout     time.Duration
	// 自动快照后保留的快照个数，0 表示不清理
	SnapshotKeep int
	Listener     AppliedListener
}

type docState struct {
	mu      sync.Mutex
	session *Session
	// 加载时快照的版本，revision = baseRevision + session.Version()
	baseRevision uint64
	opsRing      []AppliedOp
	// 去重窗口：记录某 clientId 最近的最大 clientSeq
	lastSeqByClient map[string]uint64
	fields          map[string]*crdt.State
	sinceSnapshot   int
}

func (ds *docState) revision() uint64 {
	return ds.baseRevision + uint64(ds.session.Version())
}

// withDoc 持文档锁执行 fn，fn 中途 panic 也会释放锁
func withDoc[T any](ds *docState, fn func() (T, error)) (T, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return fn()
}

// 持锁时取出的自动快照内容，解锁后再写存储
type pendingSnapshot struct {
	content string
	rev     uint64
	due     bool
}

var _ Service = (*InMemoryService)(nil)

// 内存实现：持有所有文档的状态，每个文档一把锁，同一文档的提交串行执行
type InMemoryService struct {
	mu    sync.RWMutex
	docs  map[string]*docState
	loads singleflight.Group
	opt   ServiceOptions

	// 依赖注入，均可为 nil
	snapshots SnapshotStore
	documents DocumentStore
	fields    FieldStore
	events    EventPublisher
	resolver  *conflict.Resolver
}

func NewInMemoryService(snapshots SnapshotStore, documents DocumentStore, fields FieldStore,
	events EventPublisher, resolver *conflict.Resolver, opt ServiceOptions) *InMemoryService {
	if opt.RingCap <= 0 {
		opt.RingCap = 1024
	}
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = 100 * time.Millisecond
	}
	if resolver == nil {
		resolver = conflict.NewResolver()
	}
	return &InMemoryService{
		docs:      make(map[string]*docState),
		opt:       opt,
		snapshots: snapshots,
		documents: documents,
		fields:    fields,
		events:    events,
		resolver:  resolver,
	}
}

func (s *InMemoryService) newDocState(docID, content string, rev uint64) *docState {
	return &docState{
		session:         NewSession(docID, content),
		baseRevision:    rev,
		opsRing:         make([]AppliedOp, 0, min(s.opt.RingCap, 64)),
		lastSeqByClient: make(map[string]uint64),
		fields:          make(map[string]*crdt.State),
	}
}

// getDoc 返回内存中的文档；不在内存时从快照加载，同一文档的并发加载只做一次
func (s *InMemoryService) getDoc(ctx context.Context, docID string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}
	v, err, _ := s.loads.Do(docID, func() (any, error) {
		s.mu.RLock()
		ds := s.docs[docID]
		s.mu.RUnlock()
		if ds != nil {
			return ds, nil
		}
		loaded, err := s.loadDoc(ctx, docID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing := s.docs[docID]; existing != nil {
			return existing, nil
		}
		s.docs[docID] = loaded
		log.Printf("document loaded doc=%s rev=%d", docID, loaded.baseRevision)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*docState), nil
}

func (s *InMemoryService) loadDoc(ctx context.Context, docID string) (*docState, error) {
	if s.snapshots != nil {
		content, rev, found, err := s.snapshots.LatestSnapshot(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot doc=%s: %w", docID, err)
		}
		if found {
			return s.newDocState(docID, content, rev), nil
		}
	}
	if s.documents != nil {
		ok, err := s.documents.DocumentExists(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("lookup doc=%s: %w", docID, err)
		}
		if ok {
			return s.newDocState(docID, "", 0), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
}

func (s *InMemoryService) CreateDocument(ctx context.Context, ownerID uint64, title, initial string) (string, error) {
	docID := uuid.NewString()
	if s.documents != nil {
		id, err := s.documents.CreateDocument(ctx, ownerID, title)
		if err != nil {
			return "", err
		}
		docID = id
	}
	if initial != "" && s.snapshots != nil {
		if err := s.snapshots.SaveDocumentSnapshot(ctx, docID, 0, initial); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	s.docs[docID] = s.newDocState(docID, initial, 0)
	s.mu.Unlock()
	log.Printf("document created doc=%s owner=%d title=%q", docID, ownerID, title)
	return docID, nil
}

func (s *InMemoryService) GetDocumentID(ctx context.Context, title string) (string, error) {
	if s.documents == nil {
		return "", ErrStoreNotConfigured
	}
	return s.documents.GetDocumentID(ctx, title)
}

// Submit 提交一个基于 baseRevision 的操作。
// baseRevision 落后时，先依次对之后的已应用操作做 transform（按 clientId 排序决定同位置插入的先后），再应用。
func (s *InMemoryService) Submit(ctx context.Context, docID string, authorID uint64, baseRevision uint64, clientID string, clientSeq uint64, op *delta.Operation) (AppliedOp, error) {
	if op == nil {
		return AppliedOp{}, fmt.Errorf("%w: nil operation", delta.ErrInvalidOperation)
	}
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return AppliedOp{}, err
	}

	var snap pendingSnapshot
	applied, err := withDoc(ds, func() (AppliedOp, error) {
		applied, err := s.submitLocked(ds, authorID, baseRevision, clientID, clientSeq, op)
		if err != nil {
			return AppliedOp{}, err
		}
		s.notifyLocked(ds, applied)
		snap = s.snapshotDue(ds)
		return applied, nil
	})
	if err != nil {
		return AppliedOp{}, err
	}

	s.publish(ctx, DocOpEvent{
		EventType:    EventOpApplied,
		DocID:        docID,
		OperationID:  applied.OperationID,
		Revision:     applied.Revision,
		AuthorID:     authorID,
		ClientID:     clientID,
		ClientSeq:    clientSeq,
		BaseRevision: baseRevision,
		Op:           applied.Op,
		AppliedAt:    applied.AppliedAt,
	})
	s.autoSnapshot(ctx, docID, snap)
	return applied, nil
}

func (s *InMemoryService) submitLocked(ds *docState, authorID, baseRevision uint64, clientID string, clientSeq uint64, op *delta.Operation) (AppliedOp, error) {
	// 幂等/去重：同一个 clientId 的序号必须递增
	if last, ok := ds.lastSeqByClient[clientID]; ok && clientSeq <= last {
		return AppliedOp{}, fmt.Errorf("%w: client=%s seq=%d last=%d", ErrDuplicateOrOutOfOrder, clientID, clientSeq, last)
	}
	cur := ds.revision()
	if baseRevision > cur || baseRevision < ds.baseRevision {
		return AppliedOp{}, fmt.Errorf("%w: base=%d current=%d", ErrRevisionConflict, baseRevision, cur)
	}
	if w := s.opt.MaxTransformWindow; w > 0 && cur-baseRevision > w {
		return AppliedOp{}, fmt.Errorf("%w: base=%d is %d revisions behind", ErrRevisionConflict, baseRevision, cur-baseRevision)
	}

	rebased, err := s.rebase(ds, op, baseRevision, clientID)
	if err != nil {
		return AppliedOp{}, err
	}
	applied, err := s.applyLocked(ds, rebased, authorID, clientID, clientSeq, baseRevision, "")
	if err != nil {
		return AppliedOp{}, err
	}
	ds.lastSeqByClient[clientID] = clientSeq
	return applied, nil
}

// rebase 把基于 baseRevision 的 op 依次 transform 过之后的每个已应用操作
func (s *InMemoryService) rebase(ds *docState, op *delta.Operation, baseRevision uint64, clientID string) (*delta.Operation, error) {
	entries, err := ds.session.History().Entries(int(baseRevision - ds.baseRevision))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRevisionConflict, err)
	}
	for _, e := range entries {
		next, _, err := delta.TransformWith(op, e.Op, delta.ByRank(clientID, string(e.Replica)))
		if err != nil {
			return nil, fmt.Errorf("transform against revision %d: %w", ds.baseRevision+uint64(e.Version), err)
		}
		op = next
	}
	return op, nil
}

func (s *InMemoryService) applyLocked(ds *docState, op *delta.Operation, authorID uint64, clientID string, clientSeq, baseRevision uint64, label string) (AppliedOp, error) {
	if _, err := ds.session.ApplyLabeled(op, crdt.ReplicaID(clientID), label); err != nil {
		return AppliedOp{}, err
	}
	applied := AppliedOp{
		OperationID:  uuid.NewString(),
		Revision:     ds.revision(),
		BaseRevision: baseRevision,
		AuthorID:     authorID,
		ClientID:     clientID,
		ClientSeq:    clientSeq,
		Op:           op,
		Label:        label,
		AppliedAt:    time.Now(),
	}
	// 环形缓冲满了丢弃最老的一条
	if len(ds.opsRing) >= s.opt.RingCap {
		ds.opsRing = append(ds.opsRing[:0], ds.opsRing[1:]...)
	}
	ds.opsRing = append(ds.opsRing, applied)
	ds.sinceSnapshot++
	return applied, nil
}

// notifyLocked 持锁通知监听者，保证所有连接看到的操作顺序与版本号一致
func (s *InMemoryService) notifyLocked(ds *docState, applied AppliedOp) {
	if s.opt.Listener == nil {
		return
	}
	s.opt.Listener.OpApplied(ds.session.DocID(), applied, ds.session.Presence())
}

// snapshotDue 在持锁时取出需要自动保存的快照内容
func (s *InMemoryService) snapshotDue(ds *docState) pendingSnapshot {
	if s.snapshots == nil || s.opt.SnapshotEvery <= 0 || ds.sinceSnapshot < s.opt.SnapshotEvery {
		return pendingSnapshot{}
	}
	ds.sinceSnapshot = 0
	return pendingSnapshot{content: ds.session.Content(), rev: ds.revision(), due: true}
}

func (s *InMemoryService) autoSnapshot(ctx context.Context, docID string, snap pendingSnapshot) {
	if !snap.due {
		return
	}
	if err := s.snapshots.SaveDocumentSnapshot(ctx, docID, snap.rev, snap.content); err != nil {
		log.Printf("auto snapshot failed doc=%s rev=%d err=%v", docID, snap.rev, err)
		return
	}
	pruner, ok := s.snapshots.(SnapshotPruner)
	if !ok || s.opt.SnapshotKeep <= 0 {
		return
	}
	if n, err := pruner.Prune(ctx, docID, s.opt.SnapshotKeep); err != nil {
		log.Printf("prune snapshots failed doc=%s err=%v", docID, err)
	} else if n > 0 {
		log.Printf("pruned %d snapshots doc=%s keep=%d", n, docID, s.opt.SnapshotKeep)
	}
}

func (s *InMemoryService) publish(ctx context.Context, evt DocOpEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opt.PublishTimeout)
	defer cancel()
	if err := s.events.Enqueue(ctx, evt); err != nil {
		log.Printf("enqueue event failed type=%s doc=%s rev=%d err=%v", evt.EventType, evt.DocID, evt.Revision, err)
	}
}

func (s *InMemoryService) CurrentRevision(ctx context.Context, docID string) (uint64, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return 0, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.revision(), nil
}

func (s *InMemoryService) LoadDocumentContent(ctx context.Context, docID string) (string, uint64, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.session.Content(), ds.revision(), nil
}

// OpsSince 返回 fromRevision 之后的已应用操作；环形缓冲里已经没有的版本返回 ErrRevisionConflict，客户端需要重新加载全文
func (s *InMemoryService) OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	cur := ds.revision()
	if fromRevision > cur {
		return nil, fmt.Errorf("%w: from=%d current=%d", ErrRevisionConflict, fromRevision, cur)
	}
	if fromRevision == cur {
		return nil, nil
	}
	if len(ds.opsRing) == 0 || ds.opsRing[0].Revision > fromRevision+1 {
		return nil, fmt.Errorf("%w: revision %d no longer buffered", ErrRevisionConflict, fromRevision)
	}
	var out []AppliedOp
	for _, op := range ds.opsRing {
		if op.Revision > fromRevision {
			out = append(out, op)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryService) ContentAt(ctx context.Context, docID string, revision uint64) (string, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return "", err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if revision < ds.baseRevision {
		return "", fmt.Errorf("%w: revision %d predates loaded snapshot %d", history.ErrVersionOutOfRange, revision, ds.baseRevision)
	}
	return ds.session.History().ContentAt(int(revision - ds.baseRevision))
}

// Undo 把文档恢复到 targetRevision 的内容，作为一个新操作追加（不改写历史）
func (s *InMemoryService) Undo(ctx context.Context, docID string, authorID uint64, clientID string, targetRevision uint64) (AppliedOp, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return AppliedOp{}, err
	}

	var snap pendingSnapshot
	applied, err := withDoc(ds, func() (AppliedOp, error) {
		if targetRevision < ds.baseRevision {
			return AppliedOp{}, fmt.Errorf("%w: revision %d predates loaded snapshot %d", history.ErrVersionOutOfRange, targetRevision, ds.baseRevision)
		}
		undo, err := ds.session.History().UndoToVersion(int(targetRevision - ds.baseRevision))
		if err != nil {
			return AppliedOp{}, err
		}
		applied, err := s.applyLocked(ds, undo, authorID, clientID, 0, ds.revision(), UndoLabelPrefix+strconv.FormatUint(targetRevision, 10))
		if err != nil {
			return AppliedOp{}, err
		}
		s.notifyLocked(ds, applied)
		snap = s.snapshotDue(ds)
		return applied, nil
	})
	if err != nil {
		return AppliedOp{}, err
	}

	s.publish(ctx, DocOpEvent{
		EventType:    EventOpApplied,
		DocID:        docID,
		OperationID:  applied.OperationID,
		Revision:     applied.Revision,
		AuthorID:     authorID,
		ClientID:     clientID,
		BaseRevision: applied.BaseRevision,
		Op:           applied.Op,
		Label:        applied.Label,
		AppliedAt:    applied.AppliedAt,
	})
	s.autoSnapshot(ctx, docID, snap)
	return applied, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.snapshots == nil {
		return ErrStoreNotConfigured
	}
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return err
	}
	snap, _ := withDoc(ds, func() (pendingSnapshot, error) {
		ds.sinceSnapshot = 0
		return pendingSnapshot{content: ds.session.Content(), rev: ds.revision(), due: true}, nil
	})
	return s.snapshots.SaveDocumentSnapshot(ctx, docID, snap.rev, snap.content)
}

func (s *InMemoryService) Join(ctx context.Context, docID string, p presence.UserPresence) ([]presence.UserPresence, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.session.AddUser(p); err != nil {
		return nil, err
	}
	return ds.session.Presence(), nil
}

func (s *InMemoryService) Leave(ctx context.Context, docID string, userID uint64) error {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.session.RemoveUser(userID) {
		return fmt.Errorf("%w: %d", presence.ErrUnknownUser, userID)
	}
	return nil
}

func (s *InMemoryService) UpdateCursor(ctx context.Context, docID string, userID uint64, cursor int, sel *presence.Selection) ([]presence.UserPresence, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if err := ds.session.SetCursor(userID, cursor); err != nil {
		return nil, err
	}
	if sel != nil {
		if err := ds.session.SetSelection(userID, sel.Start, sel.End); err != nil {
			return nil, err
		}
	}
	return ds.session.Presence(), nil
}

func (s *InMemoryService) Presence(ctx context.Context, docID string) ([]presence.UserPresence, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.session.Presence(), nil
}

// fieldLocked 取字段状态，内存里没有时从 FieldStore 加载
func (s *InMemoryService) fieldLocked(ctx context.Context, ds *docState, field string) (*crdt.State, error) {
	if st, ok := ds.fields[field]; ok {
		return st, nil
	}
	if s.fields == nil {
		return nil, nil
	}
	data, ok, err := s.fields.LoadField(ctx, ds.session.DocID(), field)
	if err != nil || !ok {
		return nil, err
	}
	var st crdt.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode field %q: %w", field, err)
	}
	ds.fields[field] = &st
	return &st, nil
}

// MergeField 按字段注册的冲突策略合并远端 CRDT 状态，返回合并后的状态
func (s *InMemoryService) MergeField(ctx context.Context, docID, field string, authorID uint64, remote *crdt.State) (*crdt.State, error) {
	if remote == nil || !remote.Kind.Valid() {
		return nil, fmt.Errorf("%w: field %q", crdt.ErrUnknownKind, field)
	}
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}

	var rev uint64
	merged, err := withDoc(ds, func() (*crdt.State, error) {
		local, err := s.fieldLocked(ctx, ds, field)
		if err != nil {
			return nil, err
		}
		merged, err := s.resolver.Resolve(field, local, remote)
		if err != nil {
			return nil, err
		}
		ds.fields[field] = merged
		rev = ds.revision()
		return merged.Clone(), nil
	})
	if err != nil {
		return nil, err
	}

	if s.fields != nil {
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		if err := s.fields.SaveField(ctx, docID, field, data); err != nil {
			log.Printf("persist field failed doc=%s field=%s err=%v", docID, field, err)
		}
	}
	s.publish(ctx, DocOpEvent{
		EventType: EventFieldMerged,
		DocID:     docID,
		Revision:  rev,
		AuthorID:  authorID,
		Field:     field,
		AppliedAt: time.Now(),
	})
	return merged, nil
}

func (s *InMemoryService) Field(ctx context.Context, docID, field string) (*crdt.State, error) {
	ds, err := s.getDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	st, err := s.fieldLocked(ctx, ds, field)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrFieldNotFound, docID, field)
	}
	return st.Clone(), nil
}
