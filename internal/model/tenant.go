// Package model はドメインモデルを定義する。
package model

import "time"

// Tenant は共有スキーマ（public）に保存されるテナントのメタデータ。
// SchemaNameはテナント名から導出された正規化済みのスキーマ識別子で、
// 作成時に一度だけ検証され、以降は不透明なトークンとして扱う。
type Tenant struct {
	ID         string
	Name       string
	SchemaName string
	APIKey     string
	CreatedAt  time.Time
}
