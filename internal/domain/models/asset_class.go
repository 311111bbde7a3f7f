package models

import "sort"

// Asset classes used by the dashboard filter.
const (
	AssetClassAll          = "All"
	AssetClassEquities     = "Equities"
	AssetClassFixedIncome  = "Fixed Income"
	AssetClassFX           = "FX"
	AssetClassCommodities  = "Commodities"
	AssetClassAlternatives = "Alternatives"
	AssetClassCash         = "Cash"
	AssetClassVolRisk      = "Vol/Risk"
)

// AssetClassMapping is the static bucket taxonomy.
var AssetClassMapping = map[string]string{
	"US Equities":            AssetClassEquities,
	"DM ex-US Equities":      AssetClassEquities,
	"EM Equities":            AssetClassEquities,
	"North America":          AssetClassEquities,
	"Europe":                 AssetClassEquities,
	"Japan":                  AssetClassEquities,
	"Asia ex-Japan":          AssetClassEquities,
	"Latin America":          AssetClassEquities,
	"Growth":                 AssetClassEquities,
	"Value":                  AssetClassEquities,
	"Small Cap":              AssetClassEquities,
	"High Dividend":          AssetClassEquities,
	"Low Volatility":         AssetClassEquities,
	"Technology":             AssetClassEquities,
	"Financials":             AssetClassEquities,
	"Energy":                 AssetClassEquities,
	"Industrials":            AssetClassEquities,
	"Consumer Discretionary": AssetClassEquities,
	"Consumer Staples":       AssetClassEquities,
	"Health Care":            AssetClassEquities,
	"Utilities":              AssetClassEquities,
	"Real Estate (REITs)":    AssetClassEquities,

	"US Treasuries (Short)":        AssetClassFixedIncome,
	"US Treasuries (Intermediate)": AssetClassFixedIncome,
	"US Treasuries (Long)":         AssetClassFixedIncome,
	"DM Sovereign ex-US":           AssetClassFixedIncome,
	"EM Sovereign (Local)":         AssetClassFixedIncome,
	"EM Sovereign (Hard)":          AssetClassFixedIncome,
	"US Investment Grade Credit":   AssetClassFixedIncome,
	"US High Yield Credit":         AssetClassFixedIncome,
	"DM High Yield Credit":         AssetClassFixedIncome,
	"EM Corporate Debt":            AssetClassFixedIncome,
	"US TIPS":                      AssetClassFixedIncome,
	"Global Inflation-Linked":      AssetClassFixedIncome,
	"Convertible Bonds":            AssetClassFixedIncome,
	"Municipal Bonds":              AssetClassFixedIncome,

	"USD Index (DXY)": AssetClassFX,
	"JPY":             AssetClassFX,
	"CHF":             AssetClassFX,
	"EUR":             AssetClassFX,
	"GBP":             AssetClassFX,
	"AUD":             AssetClassFX,
	"CAD":             AssetClassFX,
	"CNH/CNY":         AssetClassFX,
	"KRW":             AssetClassFX,
	"MXN":             AssetClassFX,
	"BRL":             AssetClassFX,
	"ZAR":             AssetClassFX,
	"TRY":             AssetClassFX,
	"IDR":             AssetClassFX,
	"INR":             AssetClassFX,

	"Gold":                      AssetClassCommodities,
	"Silver":                    AssetClassCommodities,
	"Platinum":                  AssetClassCommodities,
	"Palladium":                 AssetClassCommodities,
	"Crude Oil (WTI)":           AssetClassCommodities,
	"Crude Oil (Brent)":         AssetClassCommodities,
	"Natural Gas":               AssetClassCommodities,
	"Gasoline":                  AssetClassCommodities,
	"Heating Oil":               AssetClassCommodities,
	"Copper":                    AssetClassCommodities,
	"Aluminum":                  AssetClassCommodities,
	"Nickel":                    AssetClassCommodities,
	"Zinc":                      AssetClassCommodities,
	"Corn":                      AssetClassCommodities,
	"Wheat":                     AssetClassCommodities,
	"Soybeans":                  AssetClassCommodities,
	"Coffee":                    AssetClassCommodities,
	"Cotton":                    AssetClassCommodities,
	"Sugar":                     AssetClassCommodities,
	"Cocoa":                     AssetClassCommodities,
	"Bloomberg Commodity Index": AssetClassCommodities,
	"GSCI":                      AssetClassCommodities,

	"Bitcoin (BTC)":         AssetClassAlternatives,
	"Ethereum (ETH)":        AssetClassAlternatives,
	"Large Cap Altcoins":    AssetClassAlternatives,
	"Stablecoin Market Cap": AssetClassAlternatives,
	"Private Equity Index":  AssetClassAlternatives,
	"Private Credit Index":  AssetClassAlternatives,
	"Hedge Funds Index":     AssetClassAlternatives,

	"USD Cash / MMF":    AssetClassCash,
	"EUR Cash":          AssetClassCash,
	"JPY Cash":          AssetClassCash,
	"Global Cash Proxy": AssetClassCash,

	"VIX":                 AssetClassVolRisk,
	"V2X":                 AssetClassVolRisk,
	"MOVE":                AssetClassVolRisk,
	"CVIX":                AssetClassVolRisk,
	"Commodity Vol Index": AssetClassVolRisk,
}

// AssetClassOf returns the class for a bucket, or "" when unmapped.
func AssetClassOf(bucket string) string {
	return AssetClassMapping[bucket]
}

// BucketsForClass returns the sorted buckets mapped to class.
// It returns nil for "All" (or ""), meaning no restriction.
func BucketsForClass(class string) []string {
	if class == "" || class == AssetClassAll {
		return nil
	}
	out := make([]string, 0, 16)
	for b, c := range AssetClassMapping {
		if c == class {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// KnownBuckets returns every mapped bucket in sorted order.
func KnownBuckets() []string {
	out := make([]string, 0, len(AssetClassMapping))
	for b := range AssetClassMapping {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
