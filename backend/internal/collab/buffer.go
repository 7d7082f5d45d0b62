package collab

import (
	"collabcore/backend/internal/ot/delta"
)

// 抽象文档内容缓冲区接口
type Buffer interface {
	Len() int
	Apply(op *delta.Operation) error
	String() string
}

/*
结构示例

初始文档内容 `"Hello world"`：

	original = "Hello world", add = ""
	pieces   = [ (orig, 0, 11) ]

在位置 5 插入 `" big"`，先在 5 处切出边界，再把新 piece 插进去：

	add    = " big"
	pieces = [ (orig, 0, 5), (add, 0, 4), (orig, 5, 6) ]

删除 [2, 7)：在 2 和 7 处各切一次边界，删掉中间的 piece。
*/
