package metaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

const (
	defaultProvisioningURL = "https://mt-provisioning-api-v1.agiliumtrade.agiliumtrade.ai"
	defaultClientAPIURL    = "https://mt-client-api-v1.agiliumtrade.agiliumtrade.ai"
	defaultStreamURL       = "wss://mt-client-api-v1.agiliumtrade.agiliumtrade.ai/ws"

	statusPollInterval = 2 * time.Second
	defaultHTTPTimeout = 30 * time.Second
)

// ClientOptions overrides the remote endpoints, mainly for tests.
type ClientOptions struct {
	HTTPClient      *http.Client
	ProvisioningURL string
	ClientAPIURL    string
	StreamURL       string
}

// RESTClient implements Client against the platform's HTTP edge.
type RESTClient struct {
	token           string
	httpClient      *http.Client
	provisioningURL string
	clientAPIURL    string
	streamURL       string
	tracer          trace.Tracer
}

func NewRESTClient(token string, tracer trace.Tracer, opts *ClientOptions) *RESTClient {
	c := &RESTClient{
		token:           token,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
		provisioningURL: defaultProvisioningURL,
		clientAPIURL:    defaultClientAPIURL,
		streamURL:       defaultStreamURL,
		tracer:          tracer,
	}
	if opts != nil {
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		if opts.ProvisioningURL != "" {
			c.provisioningURL = opts.ProvisioningURL
		}
		if opts.ClientAPIURL != "" {
			c.clientAPIURL = opts.ClientAPIURL
		}
		if opts.StreamURL != "" {
			c.streamURL = opts.StreamURL
		}
	}
	return c
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return e.Message }

func (c *RESTClient) do(ctx context.Context, method, rawURL string, body, out any) error {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "metaapi.request")
		span.SetAttributes(attribute.String("http.method", method))
		defer span.End()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("auth-token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload := struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}{}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(raw, &payload)
		message := payload.Message
		if message == "" {
			message = payload.Error
		}
		if message == "" {
			message = fmt.Sprintf("metaapi request failed with status %d", resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RESTClient) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	err := c.do(ctx, http.MethodGet, c.provisioningURL+"/users/current/accounts", nil, &accounts)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *RESTClient) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var acc domain.Account
	err := c.do(ctx, http.MethodGet, c.provisioningURL+"/users/current/accounts/"+url.PathEscape(accountID), nil, &acc)
	if err != nil {
		var ae *apiError
		if isStatus(err, http.StatusNotFound, &ae) {
			return nil, domain.AccountNotFound(accountID)
		}
		return nil, err
	}
	return &restAccount{client: c, account: acc}, nil
}

func isStatus(err error, status int, out **apiError) bool {
	ae, ok := err.(*apiError)
	if !ok || ae.Status != status {
		return false
	}
	*out = ae
	return true
}

type restAccount struct {
	client  *RESTClient
	account domain.Account
}

func (a *restAccount) ID() string { return a.account.ID }

func (a *restAccount) State() domain.AccountState { return a.account.State }

func (a *restAccount) Details() domain.Account { return a.account }

func (a *restAccount) Deploy(ctx context.Context) error {
	return a.client.do(ctx, http.MethodPost, a.provisioningPath("/deploy"), nil, nil)
}

func (a *restAccount) Undeploy(ctx context.Context) error {
	return a.client.do(ctx, http.MethodPost, a.provisioningPath("/undeploy"), nil, nil)
}

// WaitConnected polls the provisioning API until the account reports a
// connected transport. The caller bounds the wait through ctx.
func (a *restAccount) WaitConnected(ctx context.Context) error {
	for {
		var acc domain.Account
		if err := a.client.do(ctx, http.MethodGet, a.provisioningPath(""), nil, &acc); err != nil {
			return err
		}
		if acc.ConnectionStatus == domain.StatusConnected {
			a.account = acc
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(statusPollInterval):
		}
	}
}

func (a *restAccount) RPCConnection() RPCConnection {
	return &restRPCConnection{client: a.client, accountID: a.account.ID}
}

func (a *restAccount) StreamingConnection() StreamingConnection {
	return newWSStreamingConnection(a.client.streamURL, a.client.token, a.account.ID)
}

func (a *restAccount) HistoricalCandles(ctx context.Context, symbol, timeframe string, startTime *time.Time, limit int) ([]domain.Candle, error) {
	q := url.Values{}
	if startTime != nil {
		q.Set("startTime", startTime.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/historical-market-data/symbols/%s/timeframes/%s/candles",
		a.clientPath(""), url.PathEscape(symbol), url.PathEscape(timeframe))
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var candles []domain.Candle
	if err := a.client.do(ctx, http.MethodGet, endpoint, nil, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func (a *restAccount) HistoricalTicks(ctx context.Context, symbol string, startTime time.Time, offset, limit int) ([]domain.Tick, error) {
	q := url.Values{}
	q.Set("startTime", startTime.UTC().Format(time.RFC3339))
	q.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/historical-market-data/symbols/%s/ticks?%s",
		a.clientPath(""), url.PathEscape(symbol), q.Encode())

	var ticks []domain.Tick
	if err := a.client.do(ctx, http.MethodGet, endpoint, nil, &ticks); err != nil {
		return nil, err
	}
	return ticks, nil
}

func (a *restAccount) provisioningPath(suffix string) string {
	return a.client.provisioningURL + "/users/current/accounts/" + url.PathEscape(a.account.ID) + suffix
}

func (a *restAccount) clientPath(suffix string) string {
	return a.client.clientAPIURL + "/users/current/accounts/" + url.PathEscape(a.account.ID) + suffix
}

type restRPCConnection struct {
	client    *RESTClient
	accountID string
}

func (r *restRPCConnection) path(suffix string) string {
	return r.client.clientAPIURL + "/users/current/accounts/" + url.PathEscape(r.accountID) + suffix
}

// Connect is a no-op for the HTTP edge; the session is established by the
// platform when the account deploys.
func (r *restRPCConnection) Connect(ctx context.Context) error { return nil }

// WaitSynchronized polls until the terminal reports a synchronized state.
func (r *restRPCConnection) WaitSynchronized(ctx context.Context) error {
	for {
		status := struct {
			Synchronized bool `json:"synchronized"`
		}{}
		err := r.client.do(ctx, http.MethodGet, r.path("/synchronization-status"), nil, &status)
		if err == nil && status.Synchronized {
			return nil
		}
		if err != nil {
			var ae *apiError
			if !isStatus(err, http.StatusConflict, &ae) {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(statusPollInterval):
		}
	}
}

func (r *restRPCConnection) Close(ctx context.Context) error { return nil }

func (r *restRPCConnection) AccountInformation(ctx context.Context) (*domain.AccountInformation, error) {
	var info domain.AccountInformation
	if err := r.client.do(ctx, http.MethodGet, r.path("/account-information"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *restRPCConnection) Positions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position
	if err := r.client.do(ctx, http.MethodGet, r.path("/positions"), nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *restRPCConnection) Position(ctx context.Context, positionID string) (*domain.Position, error) {
	var position domain.Position
	if err := r.client.do(ctx, http.MethodGet, r.path("/positions/"+url.PathEscape(positionID)), nil, &position); err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *restRPCConnection) Orders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if err := r.client.do(ctx, http.MethodGet, r.path("/orders"), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *restRPCConnection) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	if err := r.client.do(ctx, http.MethodGet, r.path("/orders/"+url.PathEscape(orderID)), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *restRPCConnection) HistoryOrdersByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	endpoint := fmt.Sprintf("%s/history-orders/time/%s/%s",
		r.path(""), url.PathEscape(start.UTC().Format(time.RFC3339)), url.PathEscape(end.UTC().Format(time.RFC3339)))
	if err := r.client.do(ctx, http.MethodGet, endpoint, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *restRPCConnection) HistoryOrdersByTicket(ctx context.Context, ticket string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := r.client.do(ctx, http.MethodGet, r.path("/history-orders/ticket/"+url.PathEscape(ticket)), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *restRPCConnection) DealsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.Deal, error) {
	var deals []domain.Deal
	endpoint := fmt.Sprintf("%s/deals/time/%s/%s",
		r.path(""), url.PathEscape(start.UTC().Format(time.RFC3339)), url.PathEscape(end.UTC().Format(time.RFC3339)))
	if err := r.client.do(ctx, http.MethodGet, endpoint, nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (r *restRPCConnection) DealsByTicket(ctx context.Context, ticket string) ([]domain.Deal, error) {
	var deals []domain.Deal
	if err := r.client.do(ctx, http.MethodGet, r.path("/deals/ticket/"+url.PathEscape(ticket)), nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (r *restRPCConnection) SymbolPrice(ctx context.Context, symbol string) (*domain.SymbolPrice, error) {
	var price domain.SymbolPrice
	if err := r.client.do(ctx, http.MethodGet, r.path("/symbols/"+url.PathEscape(symbol)+"/current-price"), nil, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

func (r *restRPCConnection) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := r.client.do(ctx, http.MethodGet, r.path("/symbols"), nil, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (r *restRPCConnection) SymbolSpecification(ctx context.Context, symbol string) (*domain.SymbolSpecification, error) {
	var spec domain.SymbolSpecification
	if err := r.client.do(ctx, http.MethodGet, r.path("/symbols/"+url.PathEscape(symbol)+"/specification"), nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (r *restRPCConnection) ServerTime(ctx context.Context) (*domain.ServerTime, error) {
	var serverTime domain.ServerTime
	if err := r.client.do(ctx, http.MethodGet, r.path("/server-time"), nil, &serverTime); err != nil {
		return nil, err
	}
	return &serverTime, nil
}

func (r *restRPCConnection) CalculateMargin(ctx context.Context, symbol, orderType string, volume, openPrice float64) (*domain.Margin, error) {
	body := map[string]any{
		"symbol":    symbol,
		"type":      orderType,
		"volume":    volume,
		"openPrice": openPrice,
	}
	var margin domain.Margin
	if err := r.client.do(ctx, http.MethodPost, r.path("/margin"), body, &margin); err != nil {
		return nil, err
	}
	return &margin, nil
}

type tradeRequest struct {
	ActionType       string                   `json:"actionType"`
	Symbol           string                   `json:"symbol,omitempty"`
	Volume           *float64                 `json:"volume,omitempty"`
	OpenPrice        *float64                 `json:"openPrice,omitempty"`
	StopLoss         *float64                 `json:"stopLoss,omitempty"`
	TakeProfit       *float64                 `json:"takeProfit,omitempty"`
	PositionID       string                   `json:"positionId,omitempty"`
	OrderID          string                   `json:"orderId,omitempty"`
	Comment          string                   `json:"comment,omitempty"`
	ClientOrderID    string                   `json:"clientId,omitempty"`
	TrailingStopLoss *domain.TrailingStopLoss `json:"trailingStopLoss,omitempty"`
}

func (r *restRPCConnection) trade(ctx context.Context, req tradeRequest) (*domain.TradeResult, error) {
	var result domain.TradeResult
	if err := r.client.do(ctx, http.MethodPost, r.path("/trade"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func marketActionType(side domain.OrderSide) string {
	if side == domain.SideSell {
		return "ORDER_TYPE_SELL"
	}
	return "ORDER_TYPE_BUY"
}

func (r *restRPCConnection) CreateMarketOrder(ctx context.Context, side domain.OrderSide, symbol string, volume float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error) {
	return r.trade(ctx, tradeRequest{
		ActionType:       marketActionType(side),
		Symbol:           symbol,
		Volume:           &volume,
		StopLoss:         stopLoss,
		TakeProfit:       takeProfit,
		Comment:          opts.Comment,
		ClientOrderID:    opts.ClientOrderID,
		TrailingStopLoss: opts.TrailingStopLoss,
	})
}

func (r *restRPCConnection) CreateLimitOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error) {
	actionType := "ORDER_TYPE_BUY_LIMIT"
	if side == domain.SideSell {
		actionType = "ORDER_TYPE_SELL_LIMIT"
	}
	return r.trade(ctx, tradeRequest{
		ActionType:    actionType,
		Symbol:        symbol,
		Volume:        &volume,
		OpenPrice:     &openPrice,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		Comment:       opts.Comment,
		ClientOrderID: opts.ClientOrderID,
	})
}

func (r *restRPCConnection) CreateStopOrder(ctx context.Context, side domain.OrderSide, symbol string, volume, openPrice float64, stopLoss, takeProfit *float64, opts TradeOptions) (*domain.TradeResult, error) {
	actionType := "ORDER_TYPE_BUY_STOP"
	if side == domain.SideSell {
		actionType = "ORDER_TYPE_SELL_STOP"
	}
	return r.trade(ctx, tradeRequest{
		ActionType:    actionType,
		Symbol:        symbol,
		Volume:        &volume,
		OpenPrice:     &openPrice,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		Comment:       opts.Comment,
		ClientOrderID: opts.ClientOrderID,
	})
}

func (r *restRPCConnection) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	return r.trade(ctx, tradeRequest{
		ActionType: "POSITION_MODIFY",
		PositionID: positionID,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

func (r *restRPCConnection) ClosePosition(ctx context.Context, positionID string) (*domain.TradeResult, error) {
	return r.trade(ctx, tradeRequest{
		ActionType: "POSITION_CLOSE_ID",
		PositionID: positionID,
	})
}

func (r *restRPCConnection) ModifyOrder(ctx context.Context, orderID string, openPrice float64, stopLoss, takeProfit *float64) (*domain.TradeResult, error) {
	return r.trade(ctx, tradeRequest{
		ActionType: "ORDER_MODIFY",
		OrderID:    orderID,
		OpenPrice:  &openPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

func (r *restRPCConnection) CancelOrder(ctx context.Context, orderID string) (*domain.TradeResult, error) {
	return r.trade(ctx, tradeRequest{
		ActionType: "ORDER_CANCEL",
		OrderID:    orderID,
	})
}
