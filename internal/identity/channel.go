// Package identity resolves who an agent is across inconsistent sources:
// the authoritative name→ID relationship from operations exports, the
// structured channel naming convention, and the promotion-method keywords
// embedded in marketing channel labels.
package identity

import (
	"regexp"
	"sort"
	"strings"

	"agentcli/internal/textutil"
)

// Channel names follow 盘口_部门_类型码_媒介码_方式码_小组. The code maps
// translate the coded segments to display labels; unknown codes pass
// through unchanged.
var (
	typeMap = map[string]string{
		"111": "投放", "222": "网红", "333": "群发(短信等)", "444": "外部合作",
		"555": "任务量(变现)", "666": "私域", "OP": "运营",
	}
	mediaMap = map[string]string{
		"KKK": "FB", "SSS": "快手", "TK": "抖音/TikTok", "TTT": "Twitter",
		"GGG": "谷歌", "III": "INS", "QQQ": "其他", "WS": "WS", "ZZZ": "群发", "RRR": "bigo",
	}
	methodMap = map[string]string{
		"AAA": "H5", "BBB": "PWA", "CCC": "马甲包", "DDD": "谷歌包",
		"EEE": "APK", "PPP": "iOS苹果包", "FFF": "小米包",
	}
)

// Product is the fixed product label for every agent in this universe.
const Product = "TT产品"

// defaultPromotionMethod applies when no keyword matches.
const defaultPromotionMethod = "投放"

var separatorPattern = regexp.MustCompile(`[-\s]+`)
var underscoreRun = regexp.MustCompile(`_+`)

// ChannelInfo is the decoded structure of a cleaned channel name.
type ChannelInfo struct {
	Product       string
	PlatformToken string
	Department    string
	TypeCode      string
	TypeName      string
	MediaCode     string
	MediaName     string
	MethodCode    string
	MethodName    string
	Group         string
}

// ParseChannel decodes a cleaned channel name. Hyphens and whitespace are
// tolerated as segment separators alongside underscores.
func ParseChannel(cleanName string) ChannelInfo {
	s := strings.TrimSpace(textutil.ToHalfWidth(cleanName))
	s = separatorPattern.ReplaceAllString(s, "_")
	s = strings.Trim(underscoreRun.ReplaceAllString(s, "_"), "_")
	parts := strings.Split(s, "_")

	part := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	info := ChannelInfo{
		Product:       Product,
		PlatformToken: part(0),
		Department:    part(1),
		TypeCode:      part(2),
		MediaCode:     part(3),
		MethodCode:    part(4),
		Group:         part(5),
	}
	info.TypeName = mapOr(typeMap, info.TypeCode)
	info.MediaName = mapOr(mediaMap, info.MediaCode)
	info.MethodName = mapOr(methodMap, info.MethodCode)
	return info
}

func mapOr(m map[string]string, code string) string {
	if name, ok := m[code]; ok {
		return name
	}
	return code
}

var promotionKeywords = map[string][]string{
	"短信": {"dx", "duanxin", "短信"},
	"投放": {"toufang", "投放"},
	"网红": {"wanghong", "网红"},
	"自投": {"zitou", "自投"},
	"官方": {"guanfang", "官方"},
}

// PromotionMethod infers how an agent acquires users from its marketing
// channel labels. An agent running several channel types gets the sorted
// "+"-joined union; no recognizable keyword defaults to 投放.
func PromotionMethod(channelNames []string) string {
	found := make(map[string]struct{})
	for _, name := range channelNames {
		lower := strings.ToLower(name)
		for method, keys := range promotionKeywords {
			for _, k := range keys {
				if strings.Contains(lower, k) {
					found[method] = struct{}{}
					break
				}
			}
		}
	}
	if len(found) == 0 {
		return defaultPromotionMethod
	}
	methods := make([]string, 0, len(found))
	for m := range found {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return strings.Join(methods, "+")
}
