package crdt

import "encoding/json"

// GCounter 只增计数器，每个 replica 只写自己的槽位
type GCounter struct {
	slots VersionVector
}

func NewGCounter() *GCounter {
	return &GCounter{slots: NewVersionVector()}
}

func (c *GCounter) Increment(r ReplicaID) { c.IncrementBy(r, 1) }

func (c *GCounter) IncrementBy(r ReplicaID, n uint64) {
	if n == 0 {
		return
	}
	if c.slots == nil {
		c.slots = NewVersionVector()
	}
	c.slots[r] += n
}

// Slot 返回 r 自己贡献的计数
func (c *GCounter) Slot(r ReplicaID) uint64 { return c.slots.Get(r) }

func (c *GCounter) Value() uint64 {
	var sum uint64
	for _, n := range c.slots {
		sum += n
	}
	return sum
}

func (c *GCounter) Merge(other *GCounter) {
	if other == nil {
		return
	}
	if c.slots == nil {
		c.slots = NewVersionVector()
	}
	c.slots.Merge(other.slots)
}

func (c *GCounter) Clone() *GCounter {
	return &GCounter{slots: c.slots.Clone()}
}

// 完整的槽位表，合并时需要每个 replica 的值而不是总和
func (c *GCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.slots.Clone())
}

func (c *GCounter) UnmarshalJSON(data []byte) error {
	slots := NewVersionVector()
	if err := json.Unmarshal(data, &slots); err != nil {
		return err
	}
	if slots == nil {
		slots = NewVersionVector()
	}
	c.slots = slots
	return nil
}

// PNCounter 由增、减两个 GCounter 组成
type PNCounter struct {
	inc *GCounter
	dec *GCounter
}

func NewPNCounter() *PNCounter {
	return &PNCounter{inc: NewGCounter(), dec: NewGCounter()}
}

func (c *PNCounter) Increment(r ReplicaID, n uint64) { c.inc.IncrementBy(r, n) }
func (c *PNCounter) Decrement(r ReplicaID, n uint64) { c.dec.IncrementBy(r, n) }

func (c *PNCounter) Value() int64 {
	return int64(c.inc.Value()) - int64(c.dec.Value())
}

func (c *PNCounter) Merge(other *PNCounter) {
	if other == nil {
		return
	}
	c.inc.Merge(other.inc)
	c.dec.Merge(other.dec)
}

func (c *PNCounter) Clone() *PNCounter {
	return &PNCounter{inc: c.inc.Clone(), dec: c.dec.Clone()}
}

type pnCounterJSON struct {
	Inc *GCounter `json:"inc"`
	Dec *GCounter `json:"dec"`
}

func (c *PNCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(pnCounterJSON{Inc: c.inc, Dec: c.dec})
}

func (c *PNCounter) UnmarshalJSON(data []byte) error {
	w := pnCounterJSON{Inc: NewGCounter(), Dec: NewGCounter()}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	// "inc":null 会把指针置空，按空计数器处理
	if w.Inc == nil {
		w.Inc = NewGCounter()
	}
	if w.Dec == nil {
		w.Dec = NewGCounter()
	}
	c.inc, c.dec = w.Inc, w.Dec
	return nil
}
