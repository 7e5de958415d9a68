// Package googledomains は国別Google検索ドメインの一覧を静的な国リストから生成する。
// キーワードトラッキングの location 検証に使う。
package googledomains

import (
	"fmt"
	"sort"
	"strings"
)

// GlobalDomain はグローバル（米国）のGoogle検索ドメイン。
const GlobalDomain = "google.com"

// Domain は検索ドメインの選択肢1件。
type Domain struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	CountryCode string `json:"countryCode"`
}

// google.com.<cc> 形式の国
var comCountries = setOf(
	"af", "ag", "ai", "ar", "au", "bd", "bh", "bn", "bo", "br", "bz", "co", "cu", "cy",
	"do", "ec", "eg", "et", "fj", "gh", "gi", "gt", "hk", "jm", "kh", "kw", "lb", "ly",
	"mm", "mt", "mx", "my", "na", "ng", "ni", "np", "om", "pa", "pe", "pg", "ph", "pk",
	"pr", "py", "qa", "sa", "sb", "sg", "sl", "sv", "tj", "tr", "tw", "ua", "uy", "vc", "vn",
)

// google.co.<cc> 形式の国
var coCountries = setOf(
	"ao", "bw", "ck", "cr", "id", "il", "in", "jp", "ke", "kr", "ls", "ma", "mz", "nz",
	"th", "tz", "ug", "uz", "ve", "vi", "za", "zm", "zw",
)

// 国コードとccTLDが一致しない例外
var exceptions = map[string]string{
	"GB": "google.co.uk",
}

var (
	table   = build()
	byValue = index(table)
)

// All は生成済みの一覧を返す。先頭はグローバルの google.com で、以降は国名順。
func All() []Domain {
	out := make([]Domain, len(table))
	copy(out, table)
	return out
}

// IsValidGoogleDomain は値が一覧に含まれるGoogleドメインかを返す。
func IsValidGoogleDomain(domain string) bool {
	_, ok := Lookup(domain)
	return ok
}

// Lookup は値に対応するエントリを返す。大文字小文字と前後の空白は無視する。
func Lookup(domain string) (Domain, bool) {
	d, ok := byValue[strings.ToLower(strings.TrimSpace(domain))]
	return d, ok
}

// ForCountry はISO 3166-1 alpha-2 の国コードに対応するエントリを返す。
func ForCountry(code string) (Domain, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, d := range table {
		if d.CountryCode == code && code != "" {
			return d, true
		}
	}
	return Domain{}, false
}

func domainFor(code string) string {
	if d, ok := exceptions[code]; ok {
		return d
	}
	cc := strings.ToLower(code)
	switch {
	case comCountries[cc]:
		return "google.com." + cc
	case coCountries[cc]:
		return "google.co." + cc
	default:
		return "google." + cc
	}
}

func build() []Domain {
	sorted := make([]country, len(countries))
	copy(sorted, countries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]Domain, 0, len(sorted)+1)
	out = append(out, Domain{
		Value: GlobalDomain,
		Label: fmt.Sprintf("Global (%s)", GlobalDomain),
	})
	for _, c := range sorted {
		value := domainFor(c.Code)
		out = append(out, Domain{
			Value:       value,
			Label:       fmt.Sprintf("%s (%s)", c.Name, value),
			CountryCode: c.Code,
		})
	}
	return out
}

func index(domains []Domain) map[string]Domain {
	m := make(map[string]Domain, len(domains))
	for _, d := range domains {
		if _, dup := m[d.Value]; dup {
			panic("googledomains: duplicate domain " + d.Value)
		}
		m[d.Value] = d
	}
	return m
}

func setOf(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}
