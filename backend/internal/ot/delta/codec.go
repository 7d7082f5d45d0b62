package delta

import (
	"encoding/json"
	"fmt"
)

// 线上格式：{"components":[...],"base_len":5,"target_len":11}
type wireOperation struct {
	Components Delta `json:"components"`
	BaseLen    int   `json:"base_len"`
	TargetLen  int   `json:"target_len"`
}

func (o *Operation) MarshalJSON() ([]byte, error) {
	ops := o.ops
	if ops == nil {
		ops = Delta{}
	}
	return json.Marshal(wireOperation{Components: ops, BaseLen: o.baseLen, TargetLen: o.targetLen})
}

// UnmarshalJSON 重新计算长度，与报文声明的不一致视为结构错误
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, err := Optimize(w.Components)
	if err != nil {
		return err
	}
	if op.baseLen != w.BaseLen || op.targetLen != w.TargetLen {
		return fmt.Errorf("%w: declared base/target %d/%d, components give %d/%d",
			ErrInvalidOperation, w.BaseLen, w.TargetLen, op.baseLen, op.targetLen)
	}
	*o = *op
	return nil
}
