// Package event は訪問イベントの帰属判定と永続化を提供する。
// ジオフェンス判定、UTMパラメータ抽出、イベント・住所・インプレッションの
// 書き込みを含む。
package event

import (
	"math"

	"github.com/hitoshi/opalizer/internal/model"
)

// earthRadiusM は地球の平均半径（メートル）。
const earthRadiusM = 6371000.0

// DistanceM は2点間の大圏距離（メートル）をhaversine公式で計算する。
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// InPerimeter は座標がいずれかの店舗のジオフェンス半径内にあるかを返す。
// 最初に一致した店舗で判定を打ち切る。どの店舗が採用されるかの順序は
// 保証しない（いずれか1店舗が一致すればイベントは受理される）。
func InPerimeter(stores []*model.Store, lat, lng float64) bool {
	for _, s := range stores {
		if DistanceM(s.Latitude, s.Longitude, lat, lng) <= s.RadiusM {
			return true
		}
	}
	return false
}
