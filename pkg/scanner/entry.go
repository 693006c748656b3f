package scanner

import "os"

// Entry 遍历过程中发现的文件系统节点
type Entry struct {
	Path  string
	Name  string
	Depth int
	// Info 是条目自身的信息；跟随符号链接时为链接目标的信息
	Info os.FileInfo

	link  bool
	id    fileID
	hasID bool
}

// IsDir 条目是否为目录（跟随链接时看链接目标）
func (e *Entry) IsDir() bool {
	return e.Info != nil && e.Info.IsDir()
}

// IsSymlink 条目路径本身是否为符号链接
func (e *Entry) IsSymlink() bool {
	return e.link
}

// Item 遍历产出的一项：条目或遍历错误，两者恰好有一个非空
type Item struct {
	Entry *Entry
	Err   error
}

// IsErr 是否为遍历错误
func (i Item) IsErr() bool {
	return i.Err != nil
}
