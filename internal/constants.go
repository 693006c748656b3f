package internal

const (
	// 配置文件名（不含扩展名）
	ConfigName = "config"

	// 环境变量前缀
	EnvPrefix = "IMAGE_FINGERPRINT"

	// 默认最大打开目录句柄数
	DefaultMaxOpen = 32

	// 默认最小深度
	DefaultMinDepth = 0

	// 默认最大深度，-1 表示不限制
	DefaultMaxDepth = -1

	// 默认日志级别
	DefaultLogLevel = "info"

	// 未指定目录时扫描当前目录
	DefaultRoot = "."
)
