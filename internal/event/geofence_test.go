package event

import (
	"math"
	"testing"

	"github.com/hitoshi/opalizer/internal/model"
)

// offsetLatitude は指定距離（メートル）だけ北にずらした緯度を返す。
// 緯度1度はおよそ111.32km。
func offsetLatitude(lat float64, meters float64) float64 {
	return lat + meters/111320.0
}

func TestDistanceM_SamePoint(t *testing.T) {
	if d := DistanceM(40.0, -74.0, 40.0, -74.0); d != 0 {
		t.Errorf("distance of a point to itself = %f, want 0", d)
	}
}

func TestDistanceM_KnownDistance(t *testing.T) {
	// 東京駅と新宿駅はおよそ6.3km
	d := DistanceM(35.681236, 139.767125, 35.690921, 139.700258)
	if d < 6000 || d > 6600 {
		t.Errorf("distance = %f, want roughly 6300", d)
	}
}

func TestDistanceM_Symmetric(t *testing.T) {
	d1 := DistanceM(40.0, -74.0, 35.68, 139.76)
	d2 := DistanceM(35.68, 139.76, 40.0, -74.0)
	if math.Abs(d1-d2) > 1e-6 {
		t.Errorf("distance should be symmetric: %f != %f", d1, d2)
	}
}

func TestInPerimeter_InsideRadius(t *testing.T) {
	stores := []*model.Store{
		{Name: "store-1", Latitude: 40.0, Longitude: -74.0, RadiusM: 500},
	}

	// 店舗から約300m
	lat := offsetLatitude(40.0, 300)
	if !InPerimeter(stores, lat, -74.0) {
		t.Error("a point 300m away should be inside a 500m perimeter")
	}
}

func TestInPerimeter_OutsideRadius(t *testing.T) {
	stores := []*model.Store{
		{Name: "store-1", Latitude: 40.0, Longitude: -74.0, RadiusM: 500},
	}

	// 店舗から約1000m
	lat := offsetLatitude(40.0, 1000)
	if InPerimeter(stores, lat, -74.0) {
		t.Error("a point 1000m away should be outside a 500m perimeter")
	}
}

func TestInPerimeter_AnyStoreAdmits(t *testing.T) {
	stores := []*model.Store{
		{Name: "far", Latitude: 10.0, Longitude: 10.0, RadiusM: 100},
		{Name: "near", Latitude: 40.0, Longitude: -74.0, RadiusM: 500},
	}

	if !InPerimeter(stores, 40.0, -74.0) {
		t.Error("a point inside any store's perimeter should be admitted")
	}
}

func TestInPerimeter_NoStores(t *testing.T) {
	if InPerimeter(nil, 40.0, -74.0) {
		t.Error("no stores means no perimeter")
	}
}
