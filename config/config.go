package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/moyu-x/image-fingerprint/internal"
	"github.com/moyu-x/image-fingerprint/pkg/scanner"
)

// ErrInvalid 配置值不合法
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Scanner struct {
		FollowLinks    bool `mapstructure:"follow_links"`
		MinDepth       int  `mapstructure:"min_depth"`
		MaxDepth       int  `mapstructure:"max_depth"`
		MaxOpen        int  `mapstructure:"max_open"`
		SameFileSystem bool `mapstructure:"same_file_system"`
	}
	Logging struct {
		Level   string
		File    string
		Verbose bool
	}
}

// Load 使用全局 viper 实例加载配置，命令行参数通过 BindPFlag 绑定到同一实例
func Load(file string) (*Config, error) {
	return LoadWith(viper.GetViper(), file)
}

// LoadWith 从指定的 viper 实例加载配置
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadWith(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(internal.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		// 显式指定的配置文件必须存在
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(internal.ConfigName)
		v.SetConfigType("yaml")

		v.AddConfigPath("$HOME/.image-fingerprint")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/image-fingerprint")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetDefaults 写入所有配置项的默认值，环境变量只对已知的键生效
func SetDefaults(v *viper.Viper) {
	v.SetDefault("scanner.follow_links", false)
	v.SetDefault("scanner.min_depth", internal.DefaultMinDepth)
	v.SetDefault("scanner.max_depth", internal.DefaultMaxDepth)
	v.SetDefault("scanner.max_open", internal.DefaultMaxOpen)
	v.SetDefault("scanner.same_file_system", false)
	v.SetDefault("logging.level", internal.DefaultLogLevel)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.verbose", false)
}

// Validate 检查深度参数；min_depth 大于 max_depth 不算错误，只会得到空结果
func (c *Config) Validate() error {
	if c.Scanner.MinDepth < 0 {
		return fmt.Errorf("%w: min depth must not be negative, got %d", ErrInvalid, c.Scanner.MinDepth)
	}
	if c.Scanner.MaxDepth < scanner.Unbounded {
		return fmt.Errorf("%w: max depth must be %d (unbounded) or more, got %d",
			ErrInvalid, scanner.Unbounded, c.Scanner.MaxDepth)
	}
	return nil
}

// Policy 把扫描配置转换为遍历策略，隐藏目录始终被剪枝
func (c *Config) Policy() scanner.Policy {
	p := scanner.DefaultPolicy()
	p.FollowLinks = c.Scanner.FollowLinks
	p.MinDepth = c.Scanner.MinDepth
	p.MaxDepth = c.Scanner.MaxDepth
	p.MaxOpen = c.Scanner.MaxOpen
	p.SameFileSystem = c.Scanner.SameFileSystem
	return p
}
