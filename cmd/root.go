package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moyu-x/image-fingerprint/config"
	"github.com/moyu-x/image-fingerprint/internal"
	"github.com/moyu-x/image-fingerprint/internal/app"
	"github.com/moyu-x/image-fingerprint/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "image-fingerprint [flags] [directories...]",
	Short: "为目录中的图片计算感知哈希指纹",
	Long: `Image Fingerprint 遍历给定的目录（默认当前目录），为每个能解码的图片
计算 64 位感知哈希，并以 "<指纹>\t<规范路径>" 的格式逐行写入标准输出。

- 以 . 开头的隐藏文件和目录会被跳过
- 无法读取或解码的文件以 "ERROR: <描述>" 写入标准错误，不影响其他文件
- 同时打开的目录句柄数不超过 --fd-max`,
	Args:    cobra.ArbitraryArgs,
	PreRunE: validateFlags,
	RunE:    runScan,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// validateFlags 在遍历开始前拒绝非法的深度参数，此时仍会打印用法
func validateFlags(cmd *cobra.Command, args []string) error {
	minDepth, _ := cmd.Flags().GetInt("min-depth")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")

	if minDepth < 0 {
		return fmt.Errorf("%w: --min-depth must not be negative", config.ErrInvalid)
	}
	if maxDepth < internal.DefaultMaxDepth {
		return fmt.Errorf("%w: --max-depth must be -1 (unbounded) or more", config.ErrInvalid)
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	// 参数已经校验通过，之后的错误（如标准输出被关闭）不再打印用法
	cmd.SilenceUsage = true

	stats, err := app.RunScan(&app.ScanOptions{
		Roots:      args,
		ConfigFile: cfgFile,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	printFinalStats(stats, args)
	return nil
}

// printFinalStats 以 info 级别记录本次运行的汇总，日志不会进入结果流
func printFinalStats(stats *internal.ScanStats, dirs []string) {
	if len(dirs) == 0 {
		dirs = []string{internal.DefaultRoot}
	}
	logger.Get().Info().Strs("roots", dirs).Msgf("扫描完成: %s", stats.String())
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&cfgFile, "config", "", "配置文件路径（默认在 $HOME/.image-fingerprint、当前目录和 /etc/image-fingerprint 中查找 config.yaml）")
	flags.BoolP("follow-links", "L", false, "跟随符号链接")
	flags.Int("min-depth", internal.DefaultMinDepth, "输出条目的最小深度")
	flags.Int("max-depth", internal.DefaultMaxDepth, "遍历的最大深度，-1 表示不限制")
	flags.IntP("fd-max", "n", internal.DefaultMaxOpen, "同时打开的目录句柄上限")
	flags.BoolP("same-file-system", "x", false, "不进入其他文件系统上的目录")
	flags.BoolP("verbose", "v", false, "在标准错误输出调试日志")
	flags.String("log-file", "", "日志文件路径")

	bindings := map[string]string{
		"scanner.follow_links":     "follow-links",
		"scanner.min_depth":        "min-depth",
		"scanner.max_depth":        "max-depth",
		"scanner.max_open":         "fd-max",
		"scanner.same_file_system": "same-file-system",
		"logging.verbose":          "verbose",
		"logging.file":             "log-file",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}
