// Package geocode はGoogle Geocoding APIとの連携を提供する。
// イベント座標の逆ジオコーディングと、店舗住所の順ジオコーディングを含む。
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"github.com/hitoshi/opalizer/internal/model"
)

// defaultEndpoint はGoogle Geocoding APIのエンドポイント。
const defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GeocoderService はジオコーディング連携のインターフェース。
// イベント処理と店舗作成の両方で使用される。
type GeocoderService interface {
	// Reverse は座標から住所を逆引きする。結果がない場合はnilを返す。
	// API呼び出しの失敗はGeocodeUnavailableErrorとして伝播させる。
	Reverse(ctx context.Context, lat, lng float64) (*model.Address, error)

	// Geocode は自由記述の住所を座標に解決する。
	// 解決できない場合は第3戻り値がfalseになる。
	Geocode(ctx context.Context, address string) (lat, lng float64, ok bool, err error)
}

// Client はGoogle Geocoding APIのクライアント。
type Client struct {
	httpClient       *http.Client
	logger           *slog.Logger
	apiKey           string
	geohashPrecision uint
	endpoint         string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはsecurity.SSRFGuardServiceが生成した送信クライアントを渡す。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string, geohashPrecision uint) *Client {
	return &Client{
		httpClient:       httpClient,
		logger:           logger,
		apiKey:           apiKey,
		geohashPrecision: geohashPrecision,
		endpoint:         defaultEndpoint,
	}
}

// SetEndpoint はAPIエンドポイントを差し替える。設定による上書きと
// テストで使用する。呼び出し側でURLの安全性検証を済ませておくこと。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// geocodeResponse はGeocoding APIのレスポンス。
type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Reverse は座標から住所を逆引きする。
// 結果の座標からgeohash（重複排除キー）を計算してAddressに載せる。
// APIの失敗は「住所なし」として握りつぶさず、GeocodeUnavailableErrorとして返す。
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (*model.Address, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))

	resp, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}

	result := resp.Results[0]
	addr := &model.Address{
		ID:        uuid.New().String(),
		Geohash:   geohash.EncodeWithPrecision(result.Geometry.Location.Lat, result.Geometry.Location.Lng, c.geohashPrecision),
		Formatted: result.FormattedAddress,
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		CreatedAt: time.Now().UTC(),
	}
	return addr, nil
}

// Geocode は自由記述の住所を座標に解決する。
// 解決できない（ZERO_RESULTS）場合は第3戻り値がfalseになる。
func (c *Client) Geocode(ctx context.Context, address string) (float64, float64, bool, error) {
	params := url.Values{}
	params.Set("address", address)

	resp, err := c.call(ctx, params)
	if err != nil {
		return 0, 0, false, err
	}

	if len(resp.Results) == 0 {
		return 0, 0, false, nil
	}

	loc := resp.Results[0].Geometry.Location
	return loc.Lat, loc.Lng, true, nil
}

// call はGeocoding APIを呼び出してレスポンスをデコードする。
// HTTPエラー、APIステータスエラーはGeocodeUnavailableErrorに包んで返す。
func (c *Client) call(ctx context.Context, params url.Values) (*geocodeResponse, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	params.Set("key", c.apiKey)
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Opalizer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ジオコーディングAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &model.GeocodeUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ジオコーディングAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &model.GeocodeUnavailableError{
			Cause: fmt.Errorf("geocoding API returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.GeocodeUnavailableError{
			Cause: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err),
		}
	}

	var decoded geocodeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("ジオコーディングAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &model.GeocodeUnavailableError{
			Cause: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err),
		}
	}

	// ZERO_RESULTSは正常系（結果なし）。それ以外の非OKはAPI側の失敗。
	if decoded.Status != "OK" && decoded.Status != "ZERO_RESULTS" {
		c.logger.Error("ジオコーディングAPIが失敗ステータスを返しました",
			slog.String("api_status", decoded.Status),
		)
		return nil, &model.GeocodeUnavailableError{
			Cause: fmt.Errorf("geocoding API status: %s", decoded.Status),
		}
	}

	return &decoded, nil
}

// compile-time interface check
var _ GeocoderService = (*Client)(nil)
