package domain

import "time"

// AccountState mirrors the deployment state reported by the trading platform.
type AccountState string

const (
	StateCreated     AccountState = "CREATED"
	StateDeploying   AccountState = "DEPLOYING"
	StateDeployed    AccountState = "DEPLOYED"
	StateUndeploying AccountState = "UNDEPLOYING"
	StateUndeployed  AccountState = "UNDEPLOYED"
)

// IsDeployed reports whether the account needs no deploy command before use.
func (s AccountState) IsDeployed() bool {
	return s == StateDeploying || s == StateDeployed
}

type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) IsValid() bool {
	return s == SideBuy || s == SideSell
}

var SupportedTimeframes = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w", "1mn"}

type Account struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Login            string           `json:"login"`
	Server           string           `json:"server"`
	Platform         string           `json:"platform"`
	Type             string           `json:"type"`
	State            AccountState     `json:"state"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

type AccountInformation struct {
	Platform     string  `json:"platform"`
	Broker       string  `json:"broker"`
	Currency     string  `json:"currency"`
	Server       string  `json:"server"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"freeMargin"`
	MarginLevel  float64 `json:"marginLevel"`
	Leverage     int     `json:"leverage"`
	TradeAllowed bool    `json:"tradeAllowed"`
}

type Position struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Type          string    `json:"type"`
	Volume        float64   `json:"volume"`
	OpenPrice     float64   `json:"openPrice"`
	CurrentPrice  float64   `json:"currentPrice"`
	StopLoss      *float64  `json:"stopLoss,omitempty"`
	TakeProfit    *float64  `json:"takeProfit,omitempty"`
	Profit        float64   `json:"profit"`
	Swap          float64   `json:"swap"`
	Commission    float64   `json:"commission"`
	Time          time.Time `json:"time"`
	Comment       string    `json:"comment,omitempty"`
	ClientOrderID string    `json:"clientId,omitempty"`
}

type Order struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Type          string    `json:"type"`
	State         string    `json:"state"`
	Volume        float64   `json:"volume"`
	OpenPrice     float64   `json:"openPrice"`
	StopLoss      *float64  `json:"stopLoss,omitempty"`
	TakeProfit    *float64  `json:"takeProfit,omitempty"`
	Time          time.Time `json:"time"`
	Comment       string    `json:"comment,omitempty"`
	ClientOrderID string    `json:"clientId,omitempty"`
}

type Deal struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId,omitempty"`
	PositionID string    `json:"positionId,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Type       string    `json:"type"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Swap       float64   `json:"swap"`
	Commission float64   `json:"commission"`
	Time       time.Time `json:"time"`
	Comment    string    `json:"comment,omitempty"`
}

type SymbolPrice struct {
	Symbol     string    `json:"symbol"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Time       time.Time `json:"time"`
	BrokerTime string    `json:"brokerTime,omitempty"`
}

type SymbolSpecification struct {
	Symbol       string  `json:"symbol"`
	Description  string  `json:"description,omitempty"`
	Digits       int     `json:"digits"`
	TickSize     float64 `json:"tickSize"`
	ContractSize float64 `json:"contractSize"`
	MinVolume    float64 `json:"minVolume"`
	MaxVolume    float64 `json:"maxVolume"`
	VolumeStep   float64 `json:"volumeStep"`
}

type Candle struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Time       time.Time `json:"time"`
	BrokerTime string    `json:"brokerTime,omitempty"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	TickVolume float64   `json:"tickVolume"`
	Volume     float64   `json:"volume"`
	Spread     float64   `json:"spread"`
}

type Tick struct {
	Symbol     string    `json:"symbol"`
	Time       time.Time `json:"time"`
	BrokerTime string    `json:"brokerTime,omitempty"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Last       float64   `json:"last,omitempty"`
	Volume     float64   `json:"volume,omitempty"`
	Side       string    `json:"side,omitempty"`
}

type ServerTime struct {
	Time       time.Time `json:"time"`
	BrokerTime string    `json:"brokerTime,omitempty"`
}

type Margin struct {
	Margin float64 `json:"margin"`
}

// TradeResult is the broker acknowledgement for a trade mutation.
type TradeResult struct {
	NumericCode int    `json:"numericCode,omitempty"`
	StringCode  string `json:"stringCode,omitempty"`
	Message     string `json:"message,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	PositionID  string `json:"positionId,omitempty"`
}

type TrailingStopLoss struct {
	Distance  *TrailingDistance  `json:"distance,omitempty"`
	Threshold *TrailingThreshold `json:"threshold,omitempty"`
}

type TrailingDistance struct {
	Distance float64 `json:"distance"`
	Units    string  `json:"units,omitempty"`
}

type TrailingThreshold struct {
	Thresholds    []StopThreshold `json:"thresholds"`
	Units         string          `json:"units,omitempty"`
	StopPriceBase string          `json:"stopPriceBase,omitempty"`
}

type StopThreshold struct {
	Threshold float64 `json:"threshold"`
	StopLoss  float64 `json:"stopLoss"`
}

// JournalFilter narrows trade journal queries.
type JournalFilter struct {
	AccountID string
	Tool      string
	Status    string
	Limit     int
}

// JournalEntry records a trade mutation and its mapped outcome.
type JournalEntry struct {
	ID            int64     `json:"id"`
	Tool          string    `json:"tool"`
	AccountID     string    `json:"accountId"`
	Symbol        string    `json:"symbol,omitempty"`
	Side          string    `json:"side,omitempty"`
	Volume        float64   `json:"volume,omitempty"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
	Status        string    `json:"status"`
	Code          string    `json:"code,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
