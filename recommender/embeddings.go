package recommender

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// embeddingsFile 嵌入文件格式，YAML 或 JSON 均可：
//
//	embeddings:
//	  planner: [0.1, 0.2, ...]
//	  agent-a: [0.3, 0.1, ...]
type embeddingsFile struct {
	Embeddings map[string][]float64 `yaml:"embeddings"`
}

// LoadEmbeddingsFile 读取节点嵌入文件
func LoadEmbeddingsFile(path string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidConfig(fmt.Sprintf("failed to read embeddings file %s: %v", path, err))
	}
	var doc embeddingsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidConfig(fmt.Sprintf("failed to parse embeddings file %s: %v", path, err))
	}
	if len(doc.Embeddings) == 0 {
		return nil, invalidConfig(fmt.Sprintf("embeddings file %s contains no embeddings", path))
	}
	return doc.Embeddings, nil
}

// SetEmbeddings 批量登记嵌入。任一维度不符时整体不生效。
func (r *SimilarityRecommender) SetEmbeddings(embeddings map[string][]float64) error {
	ids := make([]string, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if len(embeddings[id]) != r.config.Dimension {
			return dimensionMismatch(id, len(embeddings[id]), r.config.Dimension)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, emb := range embeddings {
		r.embeddings[id] = append([]float64(nil), emb...)
	}
	return nil
}

// EmbeddingCount 已登记的节点数
func (r *SimilarityRecommender) EmbeddingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.embeddings)
}
