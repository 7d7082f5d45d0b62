package delta

// stream 逐个消费组件，支持只消费组件的前 n 个单位
type stream struct {
	ops Delta
	i   int
	cur Op
	ok  bool
}

func newStream(ops Delta) *stream {
	s := &stream{ops: ops}
	s.next()
	return s
}

func (s *stream) next() {
	if s.i < len(s.ops) {
		s.cur = s.ops[s.i]
		s.i++
		s.ok = true
		return
	}
	s.cur = Op{}
	s.ok = false
}

func (s *stream) is(k Kind) bool { return s.ok && s.cur.Kind == k }

// consume 消耗当前组件的前 n 个单位，耗尽则前进到下一个
func (s *stream) consume(n int) {
	if n >= s.cur.Len() {
		s.next()
		return
	}
	if s.cur.Kind == KindInsert {
		s.cur = InsertOp(string([]rune(s.cur.Text)[n:]))
		return
	}
	s.cur.Count -= n
}

// head 返回当前 insert 组件的前 n 个码点
func (s *stream) head(n int) string {
	r := []rune(s.cur.Text)
	if n >= len(r) {
		return s.cur.Text
	}
	return string(r[:n])
}
