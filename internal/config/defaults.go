package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Providers: []ProviderConfig{
			{
				Name:    "ollama",
				APIBase: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Conversation: ConvConfig{
			MaxHistory:    10,
			MaxTokens:     4000,
			CacheCapacity: 100,
			EvictBatch:    20,
		},
		Query: QueryConfig{
			DuplicateThreshold: 0.85,
			ContextBudget:      3000,
		},
		Citations: CitationConfig{
			FuzzyThreshold: 0.85,
		},
		Storage: StorageConfig{
			Backend:      "memory",
			DBPath:       "~/.docchat/docchat.db",
			TTLDays:      30,
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}
