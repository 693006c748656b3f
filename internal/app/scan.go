package app

import (
	"io"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/image-fingerprint/config"
	"github.com/moyu-x/image-fingerprint/internal"
	"github.com/moyu-x/image-fingerprint/pkg/imagefile"
	"github.com/moyu-x/image-fingerprint/pkg/logger"
	"github.com/moyu-x/image-fingerprint/pkg/pipeline"
	"github.com/moyu-x/image-fingerprint/pkg/scanner"
)

type ScanOptions struct {
	Roots      []string
	ConfigFile string
	Stdout     io.Writer
	Stderr     io.Writer
}

// RunScan 加载配置、初始化日志，然后依次扫描每个根目录
func RunScan(opts *ScanOptions) (*internal.ScanStats, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Verbose); err != nil {
		return nil, err
	}

	logger.Get().Debug().Msg("加载配置完成")

	r := &Runner{
		Fs:     afero.NewOsFs(),
		Policy: cfg.Policy(),
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	}
	return r.Run(opts.Roots)
}

// Runner 把遍历器和哈希流水线串起来，根目录之间不共享任何遍历状态
type Runner struct {
	Fs     afero.Fs
	Policy scanner.Policy
	Stdout io.Writer
	Stderr io.Writer
	// Canonicalize 为空时使用真实文件系统的路径解析
	Canonicalize pipeline.Canonicalizer
}

// Run 按给定顺序扫描根目录，没有根目录时扫描当前目录。
// 只有结果或诊断输出写入失败时才返回错误，单个条目的失败只计入统计。
func (r *Runner) Run(roots []string) (*internal.ScanStats, error) {
	if len(roots) == 0 {
		roots = []string{internal.DefaultRoot}
	}
	if r.Fs == nil {
		r.Fs = afero.NewOsFs()
	}
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}

	opts := []pipeline.Option{pipeline.WithDecoder(imagefile.NewDecoder(r.Fs))}
	if r.Canonicalize != nil {
		opts = append(opts, pipeline.WithCanonicalizer(r.Canonicalize))
	}
	p := pipeline.New(r.Stdout, r.Stderr, opts...)

	stats := &internal.ScanStats{StartTime: time.Now()}
	defer func() {
		stats.EndTime = time.Now()
	}()

	for _, root := range roots {
		rs, err := r.scanRoot(p, root)
		stats.Add(rs)
		if err != nil {
			logger.Get().Error().Err(err).Str("root", root).Msg("输出写入失败，停止扫描")
			return stats, err
		}
	}

	if err := p.Flush(); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	return stats, nil
}

func (r *Runner) scanRoot(p *pipeline.Pipeline, root string) (internal.RootStats, error) {
	before := p.Stats()
	w := scanner.New(r.Fs, root, r.Policy)

	policy := w.Policy()
	logger.Get().Info().
		Str("root", root).
		Bool("follow_links", policy.FollowLinks).
		Int("min_depth", policy.MinDepth).
		Int("max_depth", policy.MaxDepth).
		Int("max_open", policy.MaxOpen).
		Bool("same_file_system", policy.SameFileSystem).
		Msg("开始扫描")

	rootStats := func() internal.RootStats {
		after := p.Stats()
		return internal.RootStats{
			Root:    root,
			Entries: after.Entries - before.Entries,
			Hashed:  after.Hashed - before.Hashed,
			Errors:  after.Errors - before.Errors,
		}
	}

	for {
		it, ok := w.Next()
		if !ok {
			break
		}
		if err := p.Process(it); err != nil {
			if cerr := w.Close(); cerr != nil {
				logger.Get().Debug().Err(cerr).Str("root", root).Msg("关闭目录句柄失败")
			}
			return rootStats(), err
		}
	}
	if err := w.Close(); err != nil {
		logger.Get().Debug().Err(err).Str("root", root).Msg("关闭目录句柄失败")
	}

	rs := rootStats()
	logger.Get().Debug().
		Str("root", root).
		Int("entries", rs.Entries).
		Int("hashed", rs.Hashed).
		Int("errors", rs.Errors).
		Int("max_open", w.MaxOpenSeen()).
		Msg("根目录扫描完成")
	return rs, nil
}
