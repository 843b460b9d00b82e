package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Ollama       OllamaConfig
	Transformers TransformersConfig
	Grammar      GrammarConfig
	Vector       VectorConfig
	Search       SearchConfig
	Tasks        TasksConfig
	Data         DataConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type OllamaConfig struct {
	// URL is the preferred endpoint. Endpoints lists the probe order used
	// when URL does not answer.
	URL            string
	Endpoints      []string
	Model          string
	TimeoutSec     float64
	PullTimeoutSec int
}

type TransformersConfig struct {
	// Seq2SeqURL is an OpenAI-compatible serving endpoint for the
	// reformulation/summarization model.
	Seq2SeqURL   string
	Seq2SeqModel string
	Seq2SeqKey   string
	// QAURL is a HF pipeline-style endpoint for extractive question
	// answering ({question, context} in, {answer, score} out).
	QAURL      string
	TimeoutSec int
	// EmbedModel is served by Ollama alongside the generative model.
	EmbedModel string
	EmbedDim   int
}

type GrammarConfig struct {
	RemoteURL  string
	LocalCmd   string
	Language   string
	TimeoutSec int
}

type VectorConfig struct {
	// Provider is "memory" (SQLite-persisted in-process index) or "milvus".
	Provider       string
	Endpoint       string
	APIKey         string
	CollectionName string
	Dim            int
}

type SearchConfig struct {
	Enabled    bool
	Provider   string
	TavilyKey  string
	SerpAPIKey string
	MaxResults int
	TimeoutSec int
}

type TasksConfig struct {
	DeadlineSec      int
	MaxContextChars  int
	MaxContextChunks int
}

type DataConfig struct {
	// Dir holds fewshot.json, feedback.json and preferences.json.
	Dir string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/plume")

	viper.SetEnvPrefix("PLUME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindLegacyEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// bindLegacyEnv wires the documented unprefixed variables so deployments
// configured for the original service keep working.
func bindLegacyEnv() {
	viper.BindEnv("ollama.url", "OLLAMA_URL")
	viper.BindEnv("ollama.model", "OLLAMA_MODEL")
	viper.BindEnv("ollama.timeoutSec", "OLLAMA_TIMEOUT")
	viper.BindEnv("search.enabled", "ENABLE_WEB_SEARCH")
	viper.BindEnv("search.provider", "WEB_SEARCH_PROVIDER")
	viper.BindEnv("search.tavilyKey", "TAVILY_API_KEY")
	viper.BindEnv("search.serpAPIKey", "SERPAPI_KEY")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 20971520)

	viper.SetDefault("sqlite.path", "./data/plume.db")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ollama.url", "http://localhost:11434")
	viper.SetDefault("ollama.endpoints", []string{
		"http://localhost:11434",
		"http://127.0.0.1:11434",
	})
	viper.SetDefault("ollama.model", "mistral")
	viper.SetDefault("ollama.timeoutSec", 60.0)
	viper.SetDefault("ollama.pullTimeoutSec", 600)

	viper.SetDefault("transformers.seq2SeqURL", "")
	viper.SetDefault("transformers.seq2SeqModel", "plume-seq2seq")
	viper.SetDefault("transformers.qaURL", "")
	viper.SetDefault("transformers.timeoutSec", 30)
	viper.SetDefault("transformers.embedModel", "nomic-embed-text")
	viper.SetDefault("transformers.embedDim", 768)

	viper.SetDefault("grammar.remoteURL", "https://api.languagetool.org/v2/check")
	viper.SetDefault("grammar.localCmd", "languagetool")
	viper.SetDefault("grammar.language", "fr")
	viper.SetDefault("grammar.timeoutSec", 20)

	viper.SetDefault("vector.provider", "memory")
	viper.SetDefault("vector.collectionName", "plume_chunks")
	viper.SetDefault("vector.dim", 768)

	viper.SetDefault("search.enabled", false)
	viper.SetDefault("search.provider", "duckduckgo")
	viper.SetDefault("search.maxResults", 3)
	viper.SetDefault("search.timeoutSec", 10)

	viper.SetDefault("tasks.deadlineSec", 120)
	viper.SetDefault("tasks.maxContextChars", 2000)
	viper.SetDefault("tasks.maxContextChunks", 5)

	viper.SetDefault("data.dir", "./data")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
