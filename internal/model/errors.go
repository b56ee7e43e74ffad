package model

import "fmt"

// ReservedSchemaError は予約済みスキーマ名に対するプロビジョン/削除要求を表す。
// 共有スキーマ（public）およびPostgreSQLのシステムスキーマは常に予約済み。
type ReservedSchemaError struct {
	Schema string
}

func (e *ReservedSchemaError) Error() string {
	return fmt.Sprintf("スキーマ名 %q は予約されています", e.Schema)
}

// SchemaAlreadyExistsError はスキーマレジストリへの二重登録を表す。
// 並行プロビジョンの敗者側はスキーマがready状態であれば成功として扱ってよい。
type SchemaAlreadyExistsError struct {
	Schema string
}

func (e *SchemaAlreadyExistsError) Error() string {
	return fmt.Sprintf("スキーマ %q は既に登録されています", e.Schema)
}

// DependentObjectsExistError はcascade=falseの削除が依存オブジェクトにより
// 拒否されたことを表す。スキーマとそのデータは無傷のまま残る。
type DependentObjectsExistError struct {
	Schema string
}

func (e *DependentObjectsExistError) Error() string {
	return fmt.Sprintf("スキーマ %q には依存オブジェクトが存在するため削除できません", e.Schema)
}

// TenantNameNotAvailableError はテナント名（正規化後の識別子を含む）の
// 衝突を表す。プロビジョン前に検出される。
type TenantNameNotAvailableError struct {
	Name string
}

func (e *TenantNameNotAvailableError) Error() string {
	return fmt.Sprintf("テナント名 %q は使用できません。別の名前を指定してください", e.Name)
}

// StoreNameNotAvailableError はスキーマ内での店舗名の衝突を表す。
type StoreNameNotAvailableError struct {
	Name string
}

func (e *StoreNameNotAvailableError) Error() string {
	return fmt.Sprintf("店舗名 %q は使用できません。別の店舗名を指定してください", e.Name)
}

// GeocodeUnavailableError はジオコーディングAPIの呼び出し失敗を表す。
// 呼び出し元へ伝播させ、「住所なし」として握りつぶしてはならない。
type GeocodeUnavailableError struct {
	Cause error
}

func (e *GeocodeUnavailableError) Error() string {
	return fmt.Sprintf("ジオコーディングAPIが利用できません: %v", e.Cause)
}

func (e *GeocodeUnavailableError) Unwrap() error {
	return e.Cause
}
