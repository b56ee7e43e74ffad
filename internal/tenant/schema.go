// Package tenant はテナントのライフサイクル管理を提供する。
// スキーマ名の正規化、スキーマレジストリ、プロビジョナー、
// テナントディレクトリを含む。
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/hitoshi/opalizer/internal/database"
)

// maxSchemaNameLen はPostgreSQLの識別子長上限（NAMEDATALEN-1）。
const maxSchemaNameLen = 63

// schemaNamePattern は正規化済みスキーマ名が満たすべき形式。
// NormalizeSchemaNameの出力は必ずこの形式になる。
var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NormalizeSchemaName はテナント名からスキーマ識別子を導出する。
// 小文字化し、英数字以外をアンダースコアに置換し、63バイトに切り詰める。
// 先頭が数字の場合はプレフィックスを付与する。この変換は決定的であり、
// 同じテナント名は常に同じスキーマ名に写る。
// 導出結果はテナント作成時に一度だけ検証され、以降は不透明なトークンとして扱う。
func NormalizeSchemaName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("テナント名が空です")
	}

	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	schema := b.String()
	if unicode.IsDigit(rune(schema[0])) {
		schema = "t_" + schema
	}
	if len(schema) > maxSchemaNameLen {
		schema = schema[:maxSchemaNameLen]
	}

	if !schemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("スキーマ名を導出できません: %q", name)
	}

	return schema, nil
}

// IsReservedSchema は指定スキーマ名が予約済みかどうかを返す。
// 共有スキーマとPostgreSQLのシステムスキーマ（pg_プレフィックス、
// information_schema）は、プロビジョンも削除も常に禁止される。
func IsReservedSchema(schema string) bool {
	if schema == database.PublicSchema || schema == "information_schema" {
		return true
	}
	return strings.HasPrefix(schema, "pg_")
}

// ValidSchemaName は正規化済みスキーマ名として妥当かどうかを返す。
// レジストリ・プロビジョナーの入口で防衛的に検査する。
func ValidSchemaName(schema string) bool {
	return len(schema) <= maxSchemaNameLen && schemaNamePattern.MatchString(schema)
}
