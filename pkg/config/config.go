package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + Moderation用）
	OpenAI OpenAIConfig

	// Git設定
	Git GitConfig

	// トレーニング設定
	Train TrainConfig

	// クロール設定
	Crawl CrawlConfig

	// 類似検索設定
	Ask AskConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
}

// GitConfig はGit操作設定
type GitConfig struct {
	CloneDir    string
	SSHKeyPath  string
	SSHPassword string // SSH秘密鍵のパスワード（パスフレーズ）
}

// TrainConfig はトレーニングパイプラインの設定
type TrainConfig struct {
	Concurrency      int      // 同時に処理するファイル数
	MinContentLength int      // これ未満のチャンクは埋め込み対象外
	Include          []string // 候補パスの include グロブ
	Exclude          []string // 候補パスの exclude グロブ
	BYOKey           bool     // 呼び出し側キー利用時は割当管理を行わない
}

// CrawlConfig はWebサイトクロールの設定
type CrawlConfig struct {
	PageAllowance int    // プロジェクトごとのページ割当
	UserAgent     string // クロール時の User-Agent
}

// AskConfig は類似検索の設定
type AskConfig struct {
	Threshold        float64 // コサイン類似度の下限
	MatchCount       int     // 返すセクション数の上限
	MinContentLength int     // これ未満の短いセクションは除外する
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "chatjet"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "chatjet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		Git: GitConfig{
			CloneDir:    getEnv("GIT_CLONE_DIR", ".cache/repos"),
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
		},
		Train: TrainConfig{
			Concurrency:      getEnvAsInt("TRAIN_CONCURRENCY", 5),
			MinContentLength: getEnvAsInt("TRAIN_MIN_CONTENT_LENGTH", 5),
			Include:          getEnvAsSlice("TRAIN_INCLUDE_GLOBS", nil),
			Exclude:          getEnvAsSlice("TRAIN_EXCLUDE_GLOBS", nil),
			BYOKey:           getEnvAsBool("TRAIN_BYO_KEY", false),
		},
		Crawl: CrawlConfig{
			PageAllowance: getEnvAsInt("CRAWL_PAGE_ALLOWANCE", 50),
			UserAgent:     getEnv("CRAWL_USER_AGENT", "ChatjetBot/1.0"),
		},
		Ask: AskConfig{
			Threshold:        getEnvAsFloat("ASK_THRESHOLD", 0.5),
			MatchCount:       getEnvAsInt("ASK_MATCH_COUNT", 10),
			MinContentLength: getEnvAsInt("ASK_MIN_CONTENT_LENGTH", 50),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice は環境変数をカンマ区切りのリストとして取得します
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
