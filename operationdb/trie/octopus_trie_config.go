package trie

// Config定义分片缓存的容量。
type Config struct {
	ShardCacheCapacity               int    `toml:",omitempty"` // 分片缓存的最大条目数
	ShardCacheTotalSizeLimit         uint64 `toml:",omitempty"` // 分片缓存中所有值的总字节数上限
	ShardCacheDeletionsQueueCapacity int    `toml:",omitempty"` // 延迟删除队列的容量
	ViewShardCacheCapacity           int    `toml:",omitempty"` // 视图调用使用的分片缓存的最大条目数
	NoCache                          bool   `toml:",omitempty"` // 禁用缓存复用，用于正确性测试
}

// DefaultConfig包含默认的缓存设置。
// 50000个条目 * 4个分片 * 1000字节 * 2个缓存（常规和视图）约为0.4GB。
// 删除队列可容纳3个满块删除的节点哈希。
var DefaultConfig = Config{
	ShardCacheCapacity:               50000,
	ShardCacheTotalSizeLimit:         3_000_000_000,
	ShardCacheDeletionsQueueCapacity: 100_000,
	ViewShardCacheCapacity:           50000,
}

// sanitize返回生效的配置。NoCache把所有容量压到1，零值取默认。
func (c Config) sanitize() Config {
	if c.NoCache {
		return Config{
			ShardCacheCapacity:               1,
			ShardCacheTotalSizeLimit:         1,
			ShardCacheDeletionsQueueCapacity: 1,
			ViewShardCacheCapacity:           1,
			NoCache:                          true,
		}
	}
	if c.ShardCacheCapacity <= 0 {
		c.ShardCacheCapacity = DefaultConfig.ShardCacheCapacity
	}
	if c.ShardCacheTotalSizeLimit == 0 {
		c.ShardCacheTotalSizeLimit = DefaultConfig.ShardCacheTotalSizeLimit
	}
	if c.ShardCacheDeletionsQueueCapacity <= 0 {
		c.ShardCacheDeletionsQueueCapacity = DefaultConfig.ShardCacheDeletionsQueueCapacity
	}
	if c.ViewShardCacheCapacity <= 0 {
		c.ViewShardCacheCapacity = DefaultConfig.ViewShardCacheCapacity
	}
	return c
}
