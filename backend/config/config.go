package config

import "github.com/spf13/viper"

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Store struct {
		// 文件存储根目录，每份文档一个子目录
		Root string `mapstructure:"root"`
	} `mapstructure:"store"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"auth"`
	Collab struct {
		MaxRetries            int  `mapstructure:"maxRetries"`
		WaitTimeoutMsec       int  `mapstructure:"waitTimeoutMsec"`
		CacheCapacity         int  `mapstructure:"cacheCapacity"`
		MaxDocumentSize       int  `mapstructure:"maxDocumentSize"`
		MaxTransformLength    int  `mapstructure:"maxTransformLength"`
		RequireLineTerminator bool `mapstructure:"requireLineTerminator"`
	} `mapstructure:"collab"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetDefault("running.port", 3003)
	v.SetDefault("store.root", "./data/docs")
	v.SetDefault("collab.cacheCapacity", 128)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
