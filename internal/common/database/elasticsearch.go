package database

import (
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
)

// OpenElasticsearch builds the transcript index client. The client connects lazily.
// transport may be nil; when set it carries the rate limiter.
func OpenElasticsearch(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*elasticsearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.NewConfigInvalidError("database.elasticsearch.addresses is empty")
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: transport,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("elasticsearch client: %v", err))
	}
	return es, nil
}
