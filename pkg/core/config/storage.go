package config

// CacheBackend 嵌入缓存后端
type CacheBackend string

const (
	// CacheMemory 进程内 LRU
	CacheMemory CacheBackend = "memory"
	// CacheRedis Redis
	CacheRedis CacheBackend = "redis"
)

// CacheConfig 嵌入缓存后端配置
type CacheConfig struct {
	// Backend 后端类型
	Backend CacheBackend `koanf:"backend"`
	// MemorySize 进程内缓存最大条目数
	MemorySize int `koanf:"memory_size"`
	// RedisAddr Redis 地址
	RedisAddr string `koanf:"redis_addr"`
	// RedisPassword Redis 密码
	RedisPassword string `koanf:"redis_password"`
	// RedisDB Redis 库编号
	RedisDB int `koanf:"redis_db"`
	// KeyPrefix 缓存键前缀
	KeyPrefix string `koanf:"key_prefix"`
}

// Validate 验证缓存配置
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheMemory, CacheRedis:
		return nil
	default:
		return ErrInvalidCacheBackend
	}
}

// WithDefaults 返回带默认值的配置
func (c CacheConfig) WithDefaults() CacheConfig {
	if c.Backend == "" {
		c.Backend = CacheMemory
	}
	if c.MemorySize == 0 {
		c.MemorySize = 10000
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "embedding:"
	}
	return c
}

// StoreConfig 文档与会话存储配置
type StoreConfig struct {
	// SQLitePath SQLite 数据库文件路径，":memory:" 表示内存库
	SQLitePath string `koanf:"sqlite_path"`
}

// WithDefaults 返回带默认值的配置
func (c StoreConfig) WithDefaults() StoreConfig {
	if c.SQLitePath == "" {
		c.SQLitePath = "twinmcp.db"
	}
	return c
}
