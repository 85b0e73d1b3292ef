package config

import (
	"fmt"

	"github.com/spf13/viper"

	"solar-panel-mes/internal/quality"
)

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	ListenAddr  string                  `mapstructure:"listen_addr"`  // API 服务器监听地址
	JournalPath string                  `mapstructure:"journal_path"` // 审计日志文件路径
	Stations    []quality.StationConfig `mapstructure:"stations"`     // 工站检验配置，为空时使用内置默认
	Criteria    []quality.Criterion     `mapstructure:"criteria"`     // 判据定义，为空时使用内置默认
}

// LoadConfig 从 config.yaml 文件加载配置
// 使用 Viper 库来读取和解析配置文件
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config") // 配置文件名称 (不带扩展名)
	viper.SetConfigType("yaml")   // 配置文件类型
	viper.AddConfigPath(".")      // 查找配置文件的路径 (当前目录)

	// 设置默认值
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("journal_path", "panels.journal")

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 将配置解析到结构体中
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 工站和判据未在配置中给出时回退到内置注册表
	if len(cfg.Stations) == 0 {
		cfg.Stations = quality.DefaultStations()
	}
	if len(cfg.Criteria) == 0 {
		cfg.Criteria = quality.DefaultCriteria()
	}

	return &cfg, nil
}

// Registry 由配置构建质量注册表
func (c *Config) Registry() *quality.Registry {
	return quality.NewRegistry(c.Stations, c.Criteria)
}
