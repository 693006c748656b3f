package scanner

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrLoop 符号链接指向了自己的某个祖先目录
var ErrLoop = errors.New("filesystem loop")

// Error 与某个路径相关的遍历错误，遍历会继续进行
type Error struct {
	Path  string
	Depth int
	// Ancestor 仅在循环错误时设置，为链接解析到的祖先目录
	Ancestor string
	Err      error
}

func (e *Error) Error() string {
	if e.Ancestor != "" {
		return fmt.Sprintf("filesystem loop found: %s points to an ancestor %s", e.Path, e.Ancestor)
	}
	cause := e.Err
	var pathErr *fs.PathError
	if errors.As(cause, &pathErr) {
		cause = pathErr.Err
	}
	return fmt.Sprintf("IO error for operation on %s: %v", e.Path, cause)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsLoop 判断 err 是否为文件系统循环错误
func IsLoop(err error) bool {
	return errors.Is(err, ErrLoop)
}
