// Package service 提供了会话转写搜索相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"chatpulse-go/internal/model"
	"chatpulse-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// TranscriptHit 是一条转写搜索命中。
type TranscriptHit struct {
	model.EsChatMessage
	Score float64 `json:"score"`
}

// SearchService 接口定义了会话转写的全文搜索操作。
type SearchService interface {
	SearchTranscripts(ctx context.Context, userID uint, query string, topK int) ([]TranscriptHit, error)
}

type searchService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esClient *elasticsearch.Client, indexName string) SearchService {
	return &searchService{esClient: esClient, indexName: indexName}
}

// SearchTranscripts 在转写索引上执行 BM25 全文搜索，
// 过滤条件保证租户只能搜到自己的会话内容。
func (s *searchService) SearchTranscripts(ctx context.Context, userID uint, query string, topK int) ([]TranscriptHit, error) {
	if topK <= 0 || topK > 100 {
		topK = 20
	}
	log.Infof("[SearchService] 开始转写搜索, query: '%s', topK: %d, user: %d", query, topK, userID)

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"text_content": query,
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
		s.esClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChatMessage `json:"_source"`
				Score  float64             `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]TranscriptHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, TranscriptHit{EsChatMessage: h.Source, Score: h.Score})
	}
	log.Infof("[SearchService] 转写搜索命中 %d 条", len(hits))
	return hits, nil
}
