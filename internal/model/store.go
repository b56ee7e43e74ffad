package model

import "time"

// Store はテナントスキーマ内の店舗。RadiusMは店舗座標を中心とする
// ジオフェンス半径（メートル）を表す。
type Store struct {
	ID        string
	Name      string
	Owner     string
	Latitude  float64
	Longitude float64
	RadiusM   float64
	CreatedAt time.Time
}
