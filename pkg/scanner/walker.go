package scanner

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/moyu-x/image-fingerprint/pkg/logger"
)

// readBatch 句柄打开期间每次 Readdir 读取的条目数
const readBatch = 128

type fileID struct {
	dev uint64
	ino uint64
}

// frame 遍历栈上的一个目录
type frame struct {
	path  string
	depth int
	id    fileID
	hasID bool
	// 解析符号链接后的路径，只在文件系统没有设备号/inode 时计算
	resolved string

	handle  afero.File
	pending []os.FileInfo
	err     error
}

// Walker 对单个根目录的惰性深度优先遍历。
// 每次调用 Next 产出一项，遍历不能重新开始。
type Walker struct {
	fs     afero.Fs
	root   string
	policy Policy

	started  bool
	finished bool

	rootDev    uint64
	rootHasDev bool

	stack []*frame
	// 持有句柄的目录，按打开先后排列
	open []*frame
	// 最近产出的目录，下次调用 Next 时才打开，期间可以用 SkipDir 取消
	deferred *Entry

	maxOpenSeen int
}

// New 创建遍历器，第一次调用 Next 之前不访问文件系统
func New(fs afero.Fs, root string, policy Policy) *Walker {
	return &Walker{
		fs:     fs,
		root:   root,
		policy: policy.normalize(),
	}
}

// Policy 返回规范化后的遍历策略
func (w *Walker) Policy() Policy {
	return w.policy
}

// Next 返回下一项，遍历结束后第二个返回值为 false
func (w *Walker) Next() (Item, bool) {
	if w.finished {
		return Item{}, false
	}
	if !w.started {
		w.started = true
		if it, ok := w.start(); ok {
			return it, true
		}
	}

	for {
		if w.deferred != nil {
			ent := w.deferred
			w.deferred = nil
			if err := w.push(ent); err != nil {
				return Item{Err: err}, true
			}
			continue
		}

		if len(w.stack) == 0 {
			w.finished = true
			return Item{}, false
		}

		top := w.stack[len(w.stack)-1]
		info, err := w.nextChild(top)
		if err != nil {
			w.pop()
			return Item{Err: &Error{Path: top.path, Depth: top.depth, Err: err}}, true
		}
		if info == nil {
			w.pop()
			continue
		}
		if it, ok := w.visit(top, info); ok {
			return it, true
		}
	}
}

// SkipDir 不进入上一次 Next 返回的目录，对非目录条目无效
func (w *Walker) SkipDir() {
	w.deferred = nil
}

// Close 关闭所有目录句柄并结束遍历
func (w *Walker) Close() error {
	var errs []error
	for _, fr := range w.open {
		if err := fr.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		fr.handle = nil
	}
	w.open = nil
	w.stack = nil
	w.deferred = nil
	w.finished = true
	return errors.Join(errs...)
}

// OpenHandles 当前打开的目录句柄数
func (w *Walker) OpenHandles() int {
	return len(w.open)
}

// MaxOpenSeen 到目前为止同时打开句柄数的最大值
func (w *Walker) MaxOpenSeen() int {
	return w.maxOpenSeen
}

func (w *Walker) start() (Item, bool) {
	info, err := w.fs.Stat(w.root)
	if err != nil {
		return Item{Err: &Error{Path: w.root, Err: err}}, true
	}

	ent := &Entry{
		Path:  w.root,
		Name:  filepath.Base(w.root),
		Depth: 0,
		Info:  info,
		link:  w.isLink(w.root),
	}
	ent.id, ent.hasID = fileIdentity(info)
	w.rootDev, w.rootHasDev = ent.id.dev, ent.hasID

	logger.Get().Debug().Str("root", w.root).Bool("dir", info.IsDir()).Msg("开始遍历")
	return w.emit(ent, info.IsDir())
}

func (w *Walker) isLink(path string) bool {
	lst, ok := w.fs.(afero.Lstater)
	if !ok {
		return false
	}
	info, _, err := lst.LstatIfPossible(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// visit 把子条目转换为输出项，依次处理剪枝、链接、文件系统边界和循环检测
func (w *Walker) visit(parent *frame, info os.FileInfo) (Item, bool) {
	ent := &Entry{
		Path:  filepath.Join(parent.path, info.Name()),
		Name:  info.Name(),
		Depth: parent.depth + 1,
		Info:  info,
		link:  info.Mode()&os.ModeSymlink != 0,
	}

	if w.policy.Prune != nil && w.policy.Prune(ent) {
		logger.Get().Trace().Str("path", ent.Path).Msg("条目被剪枝")
		return Item{}, false
	}

	if ent.link && w.policy.FollowLinks {
		target, err := w.fs.Stat(ent.Path)
		if err != nil {
			return Item{Err: &Error{Path: ent.Path, Depth: ent.Depth, Err: err}}, true
		}
		ent.Info = target
	}

	if !ent.IsDir() {
		return w.emit(ent, false)
	}

	ent.id, ent.hasID = fileIdentity(ent.Info)
	if w.policy.SameFileSystem && w.rootHasDev && ent.hasID && ent.id.dev != w.rootDev {
		logger.Get().Debug().Str("path", ent.Path).Msg("跳过其他文件系统上的目录")
		return Item{}, false
	}

	if ent.link {
		if anc := w.loopAncestor(ent); anc != nil {
			return Item{Err: &Error{
				Path:     ent.Path,
				Depth:    ent.Depth,
				Ancestor: anc.path,
				Err:      ErrLoop,
			}}, true
		}
	}

	return w.emit(ent, true)
}

// emit 达到最小深度时输出条目，深度范围内的目录安排向下遍历
func (w *Walker) emit(ent *Entry, dir bool) (Item, bool) {
	descend := dir && w.policy.descends(ent.Depth)

	if w.policy.yields(ent.Depth) {
		if descend {
			w.deferred = ent
		}
		return Item{Entry: ent}, true
	}

	if descend {
		if err := w.push(ent); err != nil {
			return Item{Err: err}, true
		}
	}
	return Item{}, false
}

func (w *Walker) loopAncestor(ent *Entry) *frame {
	if ent.hasID {
		for i := len(w.stack) - 1; i >= 0; i-- {
			if fr := w.stack[i]; fr.hasID && fr.id == ent.id {
				return fr
			}
		}
		return nil
	}

	resolved, err := filepath.EvalSymlinks(ent.Path)
	if err != nil {
		return nil
	}
	for i := len(w.stack) - 1; i >= 0; i-- {
		if fr := w.stack[i]; fr.resolved != "" && fr.resolved == resolved {
			return fr
		}
	}
	return nil
}

// push 打开目录并压栈，句柄用完时先释放最早打开的句柄
func (w *Walker) push(ent *Entry) error {
	for len(w.open) >= w.policy.MaxOpen {
		w.evict(w.open[0])
	}

	f, err := w.fs.Open(ent.Path)
	if err != nil {
		return &Error{Path: ent.Path, Depth: ent.Depth, Err: err}
	}

	fr := &frame{
		path:   ent.Path,
		depth:  ent.Depth,
		id:     ent.id,
		hasID:  ent.hasID,
		handle: f,
	}
	if !fr.hasID {
		if resolved, err := filepath.EvalSymlinks(ent.Path); err == nil {
			fr.resolved = resolved
		}
	}

	w.stack = append(w.stack, fr)
	w.open = append(w.open, fr)
	if len(w.open) > w.maxOpenSeen {
		w.maxOpenSeen = len(w.open)
	}
	return nil
}

// evict 把剩余子条目读入内存后关闭句柄，回溯到该目录时从缓存继续
func (w *Walker) evict(fr *frame) {
	rest, err := fr.handle.Readdir(-1)
	fr.pending = append(fr.pending, rest...)
	if err != nil && !errors.Is(err, io.EOF) {
		fr.err = err
	}
	logger.Get().Trace().
		Str("path", fr.path).
		Int("buffered", len(fr.pending)).
		Msg("目录句柄已释放，剩余条目已缓存")
	w.release(fr)
}

func (w *Walker) nextChild(fr *frame) (os.FileInfo, error) {
	for {
		if len(fr.pending) > 0 {
			info := fr.pending[0]
			fr.pending = fr.pending[1:]
			return info, nil
		}
		if fr.err != nil {
			err := fr.err
			fr.err = nil
			return nil, err
		}
		if fr.handle == nil {
			return nil, nil
		}

		infos, err := fr.handle.Readdir(readBatch)
		fr.pending = infos
		if err != nil {
			w.release(fr)
			if !errors.Is(err, io.EOF) {
				fr.err = err
			}
		} else if len(infos) == 0 {
			w.release(fr)
		}
	}
}

func (w *Walker) pop() {
	fr := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.release(fr)
}

func (w *Walker) release(fr *frame) {
	if fr.handle == nil {
		return
	}
	if err := fr.handle.Close(); err != nil {
		logger.Get().Debug().Err(err).Str("path", fr.path).Msg("关闭目录句柄失败")
	}
	fr.handle = nil
	for i, o := range w.open {
		if o == fr {
			w.open = append(w.open[:i], w.open[i+1:]...)
			break
		}
	}
}
