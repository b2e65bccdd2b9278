package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Crawl
	StartURLs          []string `envconfig:"CRAWL_START_URLS" default:"https://vntu.edu.ua/uk/about-university/vntu-today.html"`
	AllowedDomains     []string `envconfig:"CRAWL_ALLOWED_DOMAINS" default:"vntu.edu.ua"`
	ExcludedExtensions []string `envconfig:"CRAWL_EXCLUDED_EXTENSIONS" default:".jpg,.jpeg,.png,.gif,.pdf"`
	ExcludedPathTerms  []string `envconfig:"CRAWL_EXCLUDED_PATH_TERMS" default:"Special:,Спеціальна:,%D0%A1%D0%BF%D0%B5%D1%86%D1%96%D0%B0%D0%BB%D1%8C%D0%BD%D0%B0:,ir.lib,repository,conferences,visnyk,journal,archive"`
	ContentSelectors   []string `envconfig:"CRAWL_CONTENT_SELECTORS" default:"div#content,div.content,article,section,main"`
	BoilerplatePhrases []string `envconfig:"CRAWL_BOILERPLATE_PHRASES" default:"details,read more,more details,подробиці,читати далі,деталі"`
	MinTextLength      int      `envconfig:"CRAWL_MIN_TEXT_LENGTH" default:"100"`
	RejectKeywords     []string `envconfig:"CRAWL_REJECT_KEYWORDS" default:"page not found,404 not found,access denied,all rights reserved,privacy policy,cookie policy,terms of use,annual report,сторінку не знайдено"`
	ExcludedURLTerms   []string `envconfig:"CRAWL_EXCLUDED_URL_TERMS" default:"login,signin,register,signup,search,admin,contact,policy,privacy,wp-json"`
	FollowRejected     bool     `envconfig:"CRAWL_FOLLOW_REJECTED" default:"true"`
	Workers            int      `envconfig:"CRAWL_WORKERS" default:"1"`
	MaxPages           int      `envconfig:"CRAWL_MAX_PAGES" default:"0"`
	UserAgent          string   `envconfig:"CRAWL_USER_AGENT" default:"CampusRAGBot/1.0"`
	FetchTimeoutSec    int      `envconfig:"CRAWL_TIMEOUT_SECONDS" default:"30"`
	FetchRetries       int      `envconfig:"CRAWL_FETCH_RETRIES" default:"2"`
	BrowserFallback    bool     `envconfig:"CRAWL_BROWSER_FALLBACK" default:"false"`
	CrawlDBPath        string   `envconfig:"CRAWL_DB_PATH" default:"data/spider.db"`
	CorpusPath         string   `envconfig:"CORPUS_PATH" default:"data/corpus.json"`

	// Index
	IndexDir          string  `envconfig:"INDEX_DIR" default:"data/index"`
	Normalize         bool    `envconfig:"INDEX_NORMALIZE" default:"false"`
	NormalizeLanguage string  `envconfig:"INDEX_NORMALIZE_LANGUAGE" default:"english"`
	StopwordsPath     string  `envconfig:"INDEX_STOPWORDS_PATH"`
	EmbedConcurrency  int     `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedRatePerSec   float64 `envconfig:"EMBED_RATE_PER_SEC" default:"0"`

	// Embedding model
	EmbedProvider  string `envconfig:"EMBED_PROVIDER" default:"hashing"`
	EmbedModel     string `envconfig:"EMBED_MODEL"`
	EmbedDimension int    `envconfig:"EMBED_DIMENSION" default:"384"`
	OllamaURL      string `envconfig:"OLLAMA_URL" default:"http://127.0.0.1:11434"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`

	// Server
	ServerPort        int    `envconfig:"SERVER_PORT" default:"8000"`
	QueryLogPath      string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	DefaultNumResults int    `envconfig:"DEFAULT_NUM_RESULTS" default:"5"`
	GenerationModel   string `envconfig:"GENERATION_MODEL" default:"phi4"`
	GenerationTimeout int    `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"120"`
}

func Load() (*Config, error) {
	// Env vars may already be set in the shell; a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return fmt.Errorf("%w: CRAWL_START_URLS", ErrMissingRequired)
	}
	if len(c.AllowedDomains) == 0 {
		return fmt.Errorf("%w: CRAWL_ALLOWED_DOMAINS", ErrMissingRequired)
	}
	if len(c.ContentSelectors) == 0 {
		return fmt.Errorf("%w: CRAWL_CONTENT_SELECTORS", ErrMissingRequired)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("%w: INDEX_DIR", ErrMissingRequired)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: CRAWL_WORKERS must be >= 1, got %d", ErrInvalid, c.Workers)
	}
	if c.MinTextLength < 0 {
		return fmt.Errorf("%w: CRAWL_MIN_TEXT_LENGTH must be >= 0, got %d", ErrInvalid, c.MinTextLength)
	}
	if c.DefaultNumResults < 1 {
		return fmt.Errorf("%w: DEFAULT_NUM_RESULTS must be >= 1, got %d", ErrInvalid, c.DefaultNumResults)
	}
	switch strings.ToLower(c.EmbedProvider) {
	case "hashing", "ollama":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown EMBED_PROVIDER %q", ErrInvalid, c.EmbedProvider)
	}
	return nil
}
