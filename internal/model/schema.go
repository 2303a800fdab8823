package model

// FieldType 是 ES 字段映射类型。
type FieldType string

const (
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldKeyword FieldType = "keyword"
	FieldText    FieldType = "text"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
)

// SimilarityCosine 是向量字段唯一支持的相似度。
const SimilarityCosine = "cosine"

// FieldMapping 描述一个元数据字段。
type FieldMapping struct {
	Type     FieldType
	Analyzer string
	// KeywordSubfield 为 text 字段额外生成 .keyword 子字段（ignore_above 256）。
	KeywordSubfield bool
}

// IndexSchema 是向量索引的声明式描述。
type IndexSchema struct {
	Name       string
	Dimension  int
	Similarity string
	// RootFields 是顶层字段，如 productId。
	RootFields map[string]FieldMapping
	// InfoObject 是元数据对象字段名（productInfo / reviewInfo），InfoFields 为其子字段。
	InfoObject string
	InfoFields map[string]FieldMapping
	Shards     int
	Replicas   int
	// Settings 是附加的 index settings，例如 index.max_result_window。
	Settings map[string]interface{}
}

// SchemaFor 返回 kind 对应的索引结构。
func SchemaFor(kind Kind, indexName string, dimension int) IndexSchema {
	if kind == KindReview {
		return ReviewSchema(indexName, dimension)
	}
	return ProductSchema(indexName, dimension)
}

// ProductSchema 返回商品向量索引的结构。
func ProductSchema(indexName string, dimension int) IndexSchema {
	return IndexSchema{
		Name:       indexName,
		Dimension:  dimension,
		Similarity: SimilarityCosine,
		RootFields: map[string]FieldMapping{
			"productId": {Type: FieldInteger},
		},
		InfoObject: "productInfo",
		InfoFields: map[string]FieldMapping{
			"name":          {Type: FieldText, KeywordSubfield: true},
			"price":         {Type: FieldFloat},
			"category":      {Type: FieldKeyword},
			"description":   {Type: FieldText, Analyzer: "standard"},
			"brand":         {Type: FieldKeyword},
			"inStock":       {Type: FieldBoolean},
			"stockQuantity": {Type: FieldInteger},
		},
		Shards:   1,
		Replicas: 1,
		Settings: map[string]interface{}{
			"index.mapping.total_fields.limit": 2000,
			"index.max_result_window":          10000,
		},
	}
}

// ReviewSchema 返回评论向量索引的结构。
func ReviewSchema(indexName string, dimension int) IndexSchema {
	return IndexSchema{
		Name:       indexName,
		Dimension:  dimension,
		Similarity: SimilarityCosine,
		RootFields: map[string]FieldMapping{
			"productId": {Type: FieldInteger},
			"entityId":  {Type: FieldInteger},
		},
		InfoObject: "reviewInfo",
		InfoFields: map[string]FieldMapping{
			"productModelName": {Type: FieldKeyword},
			"productCategory":  {Type: FieldKeyword},
			"productPrice":     {Type: FieldFloat},
			"reviewRating":     {Type: FieldInteger},
			"reviewDate":       {Type: FieldDate},
			"reviewText":       {Type: FieldText, Analyzer: "standard"},
		},
		Shards:   1,
		Replicas: 1,
	}
}

func (f FieldMapping) body() map[string]interface{} {
	m := map[string]interface{}{"type": string(f.Type)}
	if f.Analyzer != "" {
		m["analyzer"] = f.Analyzer
	}
	if f.KeywordSubfield {
		m["fields"] = map[string]interface{}{
			"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 256},
		}
	}
	return m
}

// Body 生成创建索引的请求体（settings + mappings）。
func (s IndexSchema) Body() map[string]interface{} {
	settings := map[string]interface{}{
		"number_of_shards":   s.Shards,
		"number_of_replicas": s.Replicas,
	}
	for k, v := range s.Settings {
		settings[k] = v
	}

	props := make(map[string]interface{}, len(s.RootFields)+2)
	for name, f := range s.RootFields {
		props[name] = f.body()
	}
	if s.InfoObject != "" {
		info := make(map[string]interface{}, len(s.InfoFields))
		for name, f := range s.InfoFields {
			info[name] = f.body()
		}
		props[s.InfoObject] = map[string]interface{}{"properties": info}
	}
	similarity := s.Similarity
	if similarity == "" {
		similarity = SimilarityCosine
	}
	props["embedding"] = map[string]interface{}{
		"type":       "dense_vector",
		"dims":       s.Dimension,
		"index":      true,
		"similarity": similarity,
	}

	return map[string]interface{}{
		"settings": settings,
		"mappings": map[string]interface{}{"properties": props},
	}
}
