package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourcesFile 是可选的 YAML 源列表，覆盖环境变量中的 RSS 源与屏蔽域名
type SourcesFile struct {
	RSS           []string `yaml:"rss"`
	BannedDomains []string `yaml:"banned_domains"`
	PriceCoins    []string `yaml:"price_coins"`
}

func LoadSourcesFile(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sf SourcesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	return &sf, nil
}

func (sf *SourcesFile) apply(cfg *Config) {
	if len(sf.RSS) > 0 {
		cfg.RSSFeeds = sf.RSS
	}
	if len(sf.BannedDomains) > 0 {
		cfg.BannedDomains = sf.BannedDomains
	}
	if len(sf.PriceCoins) > 0 {
		cfg.PriceCoins = sf.PriceCoins
	}
}
