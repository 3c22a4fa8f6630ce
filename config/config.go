package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// 支持的 LLM 提供方
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// DefaultModel 未配置 model 时各提供方使用的模型
func DefaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-3-5-sonnet-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.2"
	default:
		return "gpt-4o"
	}
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Data     DataConfig     `yaml:"data"`
}

type ServerConfig struct {
	Port       string        `yaml:"port"`
	Mode       string        `yaml:"mode"`        // debug, release
	SessionTTL time.Duration `yaml:"session_ttl"` // 会话空闲过期时间
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider      string        `yaml:"provider"` // openai, anthropic, gemini, ollama
	APIURL        string        `yaml:"api_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float32       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"` // 0 表示只请求一次
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	MaxConcurrent int           `yaml:"max_concurrent"` // 全局同时进行的分析数量上限
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回带默认值的配置
func Default() *Config {
	c := base()
	c.applyProviderDefaults()
	return c
}

// base 不含随提供方变化的字段，model 与 api_url 在合并完文件和环境变量后再补齐
func base() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			Mode:       "debug",
			SessionTTL: 30 * time.Minute,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		LLM: LLMConfig{
			Provider:      ProviderOpenAI,
			MaxTokens:     4096,
			Temperature:   0.2,
			Timeout:       2 * time.Minute,
			RetryBackoff:  time.Second,
			MaxConcurrent: 16,
		},
		Data: DataConfig{
			Dir: "./data",
		},
	}
}

func loadConfig() *Config {
	// .env 不存在时忽略
	if err := godotenv.Load(); err == nil {
		klog.V(6).Infof("已加载 .env 文件")
	}

	config := base()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Errorf("解析配置文件失败: path=%s, error=%v", configPath, err)
		}
	}

	applyEnv(config)
	config.applyProviderDefaults()
	return config
}

func (c *Config) applyProviderDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel(c.LLM.Provider)
	}
	if c.LLM.APIURL == "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.APIURL = DefaultOpenAIURL
	}
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		config.Server.Mode = mode
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Server.SessionTTL = d
		} else {
			klog.Warningf("忽略无效的 SESSION_TTL: %s", ttl)
		}
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = strings.ToLower(provider)
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	} else if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv(providerKeyEnv(config.LLM.Provider))
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if retries := os.Getenv("LLM_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.LLM.MaxRetries = n
		} else {
			klog.Warningf("忽略无效的 LLM_MAX_RETRIES: %s", retries)
		}
	}
	if concurrent := os.Getenv("LLM_MAX_CONCURRENT"); concurrent != "" {
		if n, err := strconv.Atoi(concurrent); err == nil {
			config.LLM.MaxConcurrent = n
		} else {
			klog.Warningf("忽略无效的 LLM_MAX_CONCURRENT: %s", concurrent)
		}
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
}

// providerKeyEnv 各提供方惯用的 API Key 环境变量
func providerKeyEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOllama:
		return ""
	default:
		return "OPENAI_API_KEY"
	}
}

// Validate 启动时检查 LLM 配置，尽早暴露缺失的凭据
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm provider: %q (supported: openai, anthropic, gemini, ollama)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	// openai 兼容网关和 ollama 可以转发任意名称
	if c.LLM.Provider == ProviderAnthropic || c.LLM.Provider == ProviderGemini {
		if family, ok := modelFamily(c.LLM.Model); ok && family != c.LLM.Provider {
			return fmt.Errorf("llm.model %q belongs to %s, not provider %q", c.LLM.Model, family, c.LLM.Provider)
		}
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.LLM.MaxConcurrent <= 0 {
		return fmt.Errorf("llm.max_concurrent must be positive")
	}
	return nil
}

// modelFamily 按名称前缀推断模型所属提供方
func modelFamily(model string) (string, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI, true
	case strings.HasPrefix(m, "claude-"):
		return ProviderAnthropic, true
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini, true
	}
	return "", false
}

// MaskKey 只保留首尾少量字符
func MaskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
