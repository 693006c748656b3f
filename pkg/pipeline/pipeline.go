// Package pipeline 把遍历结果转换为指纹行和诊断信息。
//
// 结果写入带缓冲的输出，诊断直接写出。每次写诊断前先刷新结果缓冲区，
// 两个流输出到同一终端时仍保持条目的处理顺序。
package pipeline

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/moyu-x/image-fingerprint/pkg/hasher"
	"github.com/moyu-x/image-fingerprint/pkg/imagefile"
	"github.com/moyu-x/image-fingerprint/pkg/logger"
	"github.com/moyu-x/image-fingerprint/pkg/scanner"
)

// Decoder 把文件路径解码为图片
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// HashFunc 计算解码后图片的指纹
type HashFunc func(image.Image) hasher.Hash

// Canonicalizer 把路径解析为不含符号链接的绝对路径
type Canonicalizer func(path string) (string, error)

// Stats 流水线计数
type Stats struct {
	Entries int // 收到的非目录条目
	Hashed  int // 写出的结果行
	Errors  int // 写出的诊断
}

// Pipeline 单线程处理条目：解码、计算指纹、解析路径、输出
type Pipeline struct {
	out  *bufio.Writer
	diag io.Writer

	decoder      Decoder
	hash         HashFunc
	canonicalize Canonicalizer

	stats Stats
}

// Option 配置 Pipeline 的可选项
type Option func(*Pipeline)

// WithDecoder 替换图片解码器，默认从本地文件系统读取
func WithDecoder(d Decoder) Option {
	return func(p *Pipeline) { p.decoder = d }
}

// WithHasher 替换指纹算法，默认为 hasher.Compute
func WithHasher(h HashFunc) Option {
	return func(p *Pipeline) { p.hash = h }
}

// WithCanonicalizer 替换路径解析，默认为 Canonical
func WithCanonicalizer(c Canonicalizer) Option {
	return func(p *Pipeline) { p.canonicalize = c }
}

// New 创建流水线，结果写入 out，诊断写入 diag
func New(out io.Writer, diag io.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		out:          bufio.NewWriter(out),
		diag:         diag,
		decoder:      imagefile.NewDecoder(nil),
		hash:         hasher.Compute,
		canonicalize: Canonical,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Canonical 返回解析全部符号链接后的绝对路径
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	return resolved, nil
}

// Process 处理一个遍历项，目录直接忽略。
// 单个条目的失败写成诊断，只有输出写入失败时才返回错误。
func (p *Pipeline) Process(item scanner.Item) error {
	if item.IsErr() {
		return p.report(item.Err)
	}

	ent := item.Entry
	if ent == nil || ent.IsDir() {
		return nil
	}
	p.stats.Entries++

	img, err := p.decoder.Decode(ent.Path)
	if err != nil {
		return p.report(err)
	}

	h := p.hash(img)

	canonical, err := p.canonicalize(ent.Path)
	if err != nil {
		return p.report(err)
	}

	if _, err := fmt.Fprintf(p.out, "%s\t%s\n", h, canonical); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	p.stats.Hashed++

	logger.Get().Debug().
		Str("path", canonical).
		Str("hash", h.String()).
		Int("depth", ent.Depth).
		Msg("计算指纹完成")
	return nil
}

// report 先刷新已缓冲的结果，再写一条诊断
func (p *Pipeline) report(cause error) error {
	p.stats.Errors++
	if err := p.out.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	if _, err := fmt.Fprintf(p.diag, "ERROR: %v\n", cause); err != nil {
		return fmt.Errorf("write diagnostic: %w", err)
	}
	logger.Get().Debug().Err(cause).Msg("处理条目失败")
	return nil
}

// Flush 写出缓冲中的结果
func (p *Pipeline) Flush() error {
	if err := p.out.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return nil
}

// Stats 返回当前计数
func (p *Pipeline) Stats() Stats {
	return p.stats
}
