package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFs 统计通过它打开且尚未关闭的句柄数
type countingFs struct {
	afero.Fs
	open   int
	max    int
	opened []string
}

func newCountingFs(fs afero.Fs) *countingFs {
	return &countingFs{Fs: fs}
}

func (c *countingFs) Open(name string) (afero.File, error) {
	f, err := c.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	c.open++
	if c.open > c.max {
		c.max = c.open
	}
	c.opened = append(c.opened, name)
	return &countingFile{File: f, fs: c}, nil
}

type countingFile struct {
	afero.File
	fs     *countingFs
	closed bool
}

func (f *countingFile) Close() error {
	if !f.closed {
		f.closed = true
		f.fs.open--
	}
	return f.File.Close()
}

func deepTree(t *testing.T, fs afero.Fs, root string, depth, width int) []string {
	t.Helper()
	var files []string
	dir := ""
	for d := 0; d < depth; d++ {
		dir = filepath.Join(dir, fmt.Sprintf("level%02d", d))
		for w := 0; w < width; w++ {
			files = append(files, filepath.ToSlash(filepath.Join(dir, fmt.Sprintf("img%d.jpg", w))))
			files = append(files, filepath.ToSlash(filepath.Join(dir, fmt.Sprintf("side%d", w), "leaf.png")))
		}
	}
	makeTree(t, fs, root, files)
	return files
}

func TestWalker_HandleBudget(t *testing.T) {
	for _, maxOpen := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max_open_%d", maxOpen), func(t *testing.T) {
			base := afero.NewMemMapFs()
			want := deepTree(t, base, "/deep", 12, 3)
			fs := newCountingFs(base)

			policy := DefaultPolicy()
			policy.MaxOpen = maxOpen
			w := New(fs, "/deep", policy)

			var got []string
			for {
				it, ok := w.Next()
				if !ok {
					break
				}
				require.False(t, it.IsErr(), "unexpected error: %v", it.Err)
				require.LessOrEqual(t, fs.open, maxOpen)
				require.LessOrEqual(t, w.OpenHandles(), maxOpen)
				if !it.Entry.IsDir() {
					rel := strings.TrimPrefix(it.Entry.Path, "/deep/")
					got = append(got, rel)
				}
			}

			assert.LessOrEqual(t, fs.max, maxOpen)
			assert.LessOrEqual(t, w.MaxOpenSeen(), maxOpen)
			assert.Equal(t, 0, fs.open, "handles leaked after the walk")
			assert.ElementsMatch(t, want, got)
		})
	}
}

func TestWalker_HandleBudgetMatchesUnbudgetedWalk(t *testing.T) {
	base := afero.NewMemMapFs()
	deepTree(t, base, "/deep", 6, 4)

	unbounded := DefaultPolicy()
	unbounded.MaxOpen = 1000
	wantEntries, wantErrs := collect(t, New(base, "/deep", unbounded))
	require.Empty(t, wantErrs)

	tight := DefaultPolicy()
	tight.MaxOpen = 1
	gotEntries, gotErrs := collect(t, New(base, "/deep", tight))
	require.Empty(t, gotErrs)

	// MemMapFs 按名称顺序枚举，两次遍历的顺序一致
	require.Equal(t, len(wantEntries), len(gotEntries))
	for i := range wantEntries {
		assert.Equal(t, wantEntries[i].Path, gotEntries[i].Path)
		assert.Equal(t, wantEntries[i].Depth, gotEntries[i].Depth)
	}
}

func TestWalker_HandleBudgetOnDisk(t *testing.T) {
	dir := t.TempDir()
	want := deepTree(t, afero.NewOsFs(), dir, 40, 1)
	fs := newCountingFs(afero.NewOsFs())

	policy := DefaultPolicy()
	policy.MaxOpen = 4
	entries, errs := collect(t, New(fs, dir, policy))
	require.Empty(t, errs)

	assert.LessOrEqual(t, fs.max, 4)
	assert.ElementsMatch(t, want, relPaths(t, dir, entries, true))
}
