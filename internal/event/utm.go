package event

import (
	"net/url"
	"strings"
)

// UTMValues はビーコンのロケーション文字列から導出されたUTMパラメータ。
type UTMValues struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// ParseUTMValues はwindow.location.searchの値からUTMパラメータを抽出する。
// 先頭の"?"は有無どちらでもよい。解析できない入力はベストエフォートで
// ゼロ値を返す（イベント受理を妨げない）。
func ParseUTMValues(search string) UTMValues {
	query := strings.TrimPrefix(search, "?")

	values, err := url.ParseQuery(query)
	if err != nil {
		return UTMValues{}
	}

	return UTMValues{
		Source:   values.Get("utm_source"),
		Medium:   values.Get("utm_medium"),
		Campaign: values.Get("utm_campaign"),
		Term:     values.Get("utm_term"),
		Content:  values.Get("utm_content"),
	}
}
