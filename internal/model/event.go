package model

import "time"

// BeaconPayload はクライアントビーコンが送信する生のイベント。
// LocationSearchはビーコン取得時のwindow.location.searchの値で、
// UTMパラメータの抽出元となる。
type BeaconPayload struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	UserID         string  `json:"user_id"`
	LocationSearch string  `json:"location_search"`
}

// Event はジオフェンス内と判定され永続化された訪問イベント。
// 書き込み後は不変。
type Event struct {
	ID          string
	TenantID    string
	Latitude    float64
	Longitude   float64
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
	CreatedAt   time.Time
}

// Address はイベント座標に対するベストエフォートの住所注釈。
// Geohashがテナントスキーマ内の重複排除キーとなる。
type Address struct {
	ID        string
	Geohash   string
	Formatted string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

// Impression は外部ユーザーIDごとの単調増加カウンター。
// user_idはスキーマ内で一意であり、アップサートでのみ更新される。
type Impression struct {
	ID     string
	UserID string
	Count  int64
}

// DeadLetter は処理に失敗したイベントの記録。共有スキーマに保存され、
// 後からの調査・再投入に使う。
type DeadLetter struct {
	ID           string
	TenantSchema string
	Payload      []byte
	Reason       string
	CreatedAt    time.Time
}
