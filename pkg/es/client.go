// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"net/http"
	"smarthomes-semantic/internal/config"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewClient 根据配置创建 Elasticsearch 客户端。
// Addresses 支持逗号分隔的多个节点；配置了 APIKey 时优先使用 APIKey 认证。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, addr := range strings.Split(esCfg.Addresses, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: esCfg.InsecureSkipVerify},
		},
	}
	if esCfg.APIKey != "" {
		cfg.APIKey = esCfg.APIKey
	} else {
		cfg.Username = esCfg.Username
		cfg.Password = esCfg.Password
	}
	return elasticsearch.NewClient(cfg)
}
