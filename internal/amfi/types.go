package amfi

import "github.com/shopspring/decimal"

// fundPerformanceRequest is the JSON body the fundperformance endpoint
// expects. A fundHouseID (mfid) of 0 queries every fund house at once.
type fundPerformanceRequest struct {
	MaturityType int    `json:"maturityType"`
	Category     int    `json:"category"`
	SubCategory  int    `json:"subCategory"`
	FundHouseID  int    `json:"mfid"`
	ReportDate   string `json:"reportDate"`
}

// fundPerformanceResponse mirrors the polling gateway's envelope. The
// gateway signals errors in-band: validationMsg is "SUCCESS" on a good
// response, anything else comes with errorMsgs attached.
type fundPerformanceResponse struct {
	ValidationMsg string         `json:"validationMsg"`
	ErrorMsgs     any            `json:"errorMsgs"`
	Data          []schemeRecord `json:"data"`
}

// schemeRecord is one scheme's published row. The gateway is loose about
// numeric types, so amounts decode through decimal's permissive unmarshal.
type schemeRecord struct {
	SchemeName string          `json:"schemeName"`
	NAVDate    string          `json:"navDate"`
	NAVRegular decimal.Decimal `json:"navRegular"`
	NAVDirect  decimal.Decimal `json:"navDirect"`
	DailyAUM   decimal.Decimal `json:"dailyAUM"`
}
