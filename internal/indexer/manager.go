// Package indexer 负责向量索引的创建以及批量写入。
package indexer

import (
	"context"
	"errors"
	"fmt"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/vectorstore"
	"smarthomes-semantic/pkg/log"
)

// ErrIndexSetup 表示索引检查、删除或创建失败。该错误影响整个运行。
var ErrIndexSetup = errors.New("index setup failed")

// Manager 保证写入前目标索引处于确定的状态。
type Manager struct {
	store vectorstore.Store
}

// NewManager 创建一个新的 Manager。
func NewManager(store vectorstore.Store) *Manager {
	return &Manager{store: store}
}

// EnsureIndex 按 schema 准备索引：
// recreate 为 true 时先删除已存在的索引再创建；否则仅在索引不存在时创建。
// 任何失败都包装 ErrIndexSetup 返回。
func (m *Manager) EnsureIndex(ctx context.Context, schema model.IndexSchema, recreate bool) error {
	if schema.Name == "" || schema.Dimension <= 0 {
		return fmt.Errorf("%w: invalid schema (name=%q, dimension=%d)", ErrIndexSetup, schema.Name, schema.Dimension)
	}

	exists, err := m.store.IndexExists(ctx, schema.Name)
	if err != nil {
		return fmt.Errorf("%w: check %s: %v", ErrIndexSetup, schema.Name, err)
	}

	if exists && !recreate {
		log.Infof("[IndexManager] 索引 '%s' 已存在，跳过创建", schema.Name)
		return nil
	}
	if exists {
		log.Infof("[IndexManager] 删除已存在的索引 '%s'", schema.Name)
		if err := m.store.DeleteIndex(ctx, schema.Name); err != nil && !errors.Is(err, vectorstore.ErrIndexNotFound) {
			return fmt.Errorf("%w: delete %s: %v", ErrIndexSetup, schema.Name, err)
		}
	}

	if err := m.store.CreateIndex(ctx, schema); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIndexSetup, schema.Name, err)
	}
	log.Infof("[IndexManager] 索引 '%s' 已就绪, 维度: %d, 相似度: %s", schema.Name, schema.Dimension, schema.Similarity)
	return nil
}
