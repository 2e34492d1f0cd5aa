// Package exchange enumerates the trading venues the gateway understands and
// maps them to ISO 10383 market identifier codes.
package exchange

import (
	"encoding/json"
	"fmt"
)

type Exchange int

const (
	Unknown Exchange = iota
	NYSE
	NYSEArca
	Nasdaq
	NasdaqHelsinki
	NasdaqStockholm
	NasdaqCopenhagen
	LuxembourgStockExchange
	LondonStockExchange
	EuronextAmsterdam
	EuronextBrussels
	EuronextDublin
	EuronextLisbon
	EuronextOslo
	EuronextParis
	EuronextMilan
	ViennaStockExchange
	AthensStockExchange
	BolsaDeMadrid
	BorsaItaliana
	Xetra
	SIXSwissExchange
	KoreaExchange
	BorseFrankfurt
	BudapestStockExchange
	PragueStockExchange
	BorsaIstanbul
	WarsawStockExchange
	TaiwanStockExchange
	TorontoStockExchange
	OTC
	MutualFund
)

// UnknownExchangeError reports a MIC or name that maps to no known venue.
type UnknownExchangeError struct {
	MIC string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("unknown exchange for MIC %q", e.MIC)
}

var micByExchange = map[Exchange]string{
	NYSE:                    "XNYS",
	NYSEArca:                "ARCX",
	Nasdaq:                  "XNAS",
	NasdaqHelsinki:          "XHEL",
	NasdaqStockholm:         "XSTO",
	NasdaqCopenhagen:        "XCSE",
	LuxembourgStockExchange: "XLUX",
	LondonStockExchange:     "XLON",
	EuronextAmsterdam:       "XAMS",
	EuronextBrussels:        "XBRU",
	EuronextDublin:          "XMSM",
	EuronextLisbon:          "XLIS",
	EuronextOslo:            "XOSL",
	EuronextParis:           "XPAR",
	EuronextMilan:           "XMIL",
	ViennaStockExchange:     "XWBO",
	AthensStockExchange:     "ASEX",
	BolsaDeMadrid:           "XMAD",
	BorsaItaliana:           "XMIL",
	Xetra:                   "XETR",
	SIXSwissExchange:        "XSWX",
	KoreaExchange:           "XKRX",
	BorseFrankfurt:          "XFRA",
	BudapestStockExchange:   "XBUD",
	PragueStockExchange:     "XPRA",
	BorsaIstanbul:           "XIST",
	WarsawStockExchange:     "XWAR",
	TaiwanStockExchange:     "XTAI",
	TorontoStockExchange:    "XTSE",
	OTC:                     "OTCM",
	MutualFund:              "XXXX",
}

var exchangeByMIC = buildExchangeByMIC()

// buildExchangeByMIC inverts micByExchange. BorsaItaliana and EuronextMilan
// share XMIL; the lower ordinal (EuronextMilan) wins so the result does not
// depend on map iteration order.
func buildExchangeByMIC() map[string]Exchange {
	m := make(map[string]Exchange, len(micByExchange))
	for ex, mic := range micByExchange {
		if cur, taken := m[mic]; !taken || ex < cur {
			m[mic] = ex
		}
	}
	return m
}

// FromMIC resolves a market identifier code to an Exchange.
func FromMIC(mic string) (Exchange, error) {
	ex, ok := exchangeByMIC[mic]
	if !ok {
		return Unknown, &UnknownExchangeError{MIC: mic}
	}
	return ex, nil
}

// MIC returns the operating market identifier code for the venue.
func (e Exchange) MIC() string {
	return micByExchange[e]
}

var names = map[Exchange]string{
	NYSE:                    "NYSE",
	NYSEArca:                "NYSE Arca",
	Nasdaq:                  "Nasdaq",
	NasdaqHelsinki:          "Nasdaq Helsinki",
	NasdaqStockholm:         "Nasdaq Stockholm",
	NasdaqCopenhagen:        "Nasdaq Copenhagen",
	LuxembourgStockExchange: "Luxembourg Stock Exchange",
	LondonStockExchange:     "London Stock Exchange",
	EuronextAmsterdam:       "Euronext Amsterdam",
	EuronextBrussels:        "Euronext Brussels",
	EuronextDublin:          "Euronext Dublin",
	EuronextLisbon:          "Euronext Lisbon",
	EuronextOslo:            "Euronext Oslo",
	EuronextParis:           "Euronext Paris",
	EuronextMilan:           "Euronext Milan",
	ViennaStockExchange:     "Vienna Stock Exchange",
	AthensStockExchange:     "Athens Stock Exchange",
	BolsaDeMadrid:           "Bolsa de Madrid",
	BorsaItaliana:           "Borsa Italiana",
	Xetra:                   "XETRA",
	SIXSwissExchange:        "SIX Swiss Exchange",
	KoreaExchange:           "Korea Exchange",
	BorseFrankfurt:          "Borse Frankfurt",
	BudapestStockExchange:   "Budapest Stock Exchange",
	PragueStockExchange:     "Prague Stock Exchange",
	BorsaIstanbul:           "Borsa Istanbul",
	WarsawStockExchange:     "Warsaw Stock Exchange",
	TaiwanStockExchange:     "Taiwan Stock Exchange",
	TorontoStockExchange:    "Toronto Stock Exchange",
	OTC:                     "OTC",
	MutualFund:              "Mutual Fund",
}

func (e Exchange) String() string {
	if n, ok := names[e]; ok {
		return n
	}
	return "Unknown"
}

// MarshalJSON encodes the venue as its operating MIC, the representation
// used at the request boundary and in cache entries.
func (e Exchange) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.MIC())
}

func (e *Exchange) UnmarshalJSON(data []byte) error {
	var mic string
	if err := json.Unmarshal(data, &mic); err != nil {
		return err
	}
	ex, err := FromMIC(mic)
	if err != nil {
		return err
	}
	*e = ex
	return nil
}

// FromName resolves a human-readable venue name as reported by providers.
// Unrecognized names fall back to OTC, matching how search results from
// upstream sources are normalized.
func FromName(name string) Exchange {
	for ex, n := range names {
		if n == name {
			return ex
		}
	}
	return OTC
}
