// Package repository persists finished embeddings for later inspection and
// warm-start reuse.
package repository

import (
	"context"
	"errors"
	"time"
)

// Стандартные ошибки
var (
	ErrEmbeddingNotFound = errors.New("embedding not found")
)

// Embedding модель сохранённого решения
type Embedding struct {
	ID               string
	Scenario         string
	Objective        string
	Seed             int64
	ObjectiveValue   float64
	Infeasible       bool
	ChangedInstances int
	InitTimeMs       float64
	RuntimeMs        float64
	NodeCount        int
	TemplateCount    int
	RequestData      []byte // JSON
	ResultData       []byte // YAML
	CreatedAt        time.Time
}

// EmbeddingSummary краткая информация о решении
type EmbeddingSummary struct {
	ID               string
	Scenario         string
	Objective        string
	ObjectiveValue   float64
	Infeasible       bool
	ChangedInstances int
	RuntimeMs        float64
	CreatedAt        time.Time
}

// ListOptions параметры выборки списка
type ListOptions struct {
	Scenario string
	Limit    int
	Offset   int
}

// Store интерфейс хранилища решений
type Store interface {
	Create(ctx context.Context, emb *Embedding) error
	GetByID(ctx context.Context, id string) (*Embedding, error)
	List(ctx context.Context, opts *ListOptions) ([]*EmbeddingSummary, error)
	Delete(ctx context.Context, id string) error
	Close()
}
