package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RESTConfig configures a REST gateway, mirroring the transport tuning the
// teacher's bitunix.NewREST applies.
type RESTConfig struct {
	Key, Secret, BaseURL string
	Timeout              time.Duration
	MaxRetries           int
	RetryWait            time.Duration
	RetryMaxWait         time.Duration
	StatusPollInterval   time.Duration
}

type orderResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// pendingOrder tracks an order this gateway has submitted but not yet
// resolved to a fill or reject, mirroring the teacher's TrackedOrder.
type pendingOrder struct {
	clientID    string
	req         Request
	submittedAt time.Time
	retries     int
}

// REST is the production Gateway implementation: a resty client with
// connection pooling, timeouts, and bounded retries, signed with the
// exchange's HMAC scheme, polling order status on an interval since plain
// REST has no native push notification for fills.
type REST struct {
	cfg    RESTConfig
	rest   *resty.Client
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingOrder

	fills   chan Fill
	rejects chan Reject

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewREST builds a REST gateway with the teacher's connection-pooling
// transport settings (MaxIdleConns, IdleConnTimeout, HTTP/2) and launches
// its background status-polling loop.
func NewREST(cfg RESTConfig, logger zerolog.Logger) *REST {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r.SetTimeout(timeout)

	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = time.Second
	}
	retryMaxWait := cfg.RetryMaxWait
	if retryMaxWait <= 0 {
		retryMaxWait = 5 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	r.SetRetryCount(retries)
	r.SetRetryWaitTime(retryWait)
	r.SetRetryMaxWaitTime(retryMaxWait)

	pollInterval := cfg.StatusPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	cfg.StatusPollInterval = pollInterval

	ctx, cancel := context.WithCancel(context.Background())
	g := &REST{
		cfg:     cfg,
		rest:    r,
		logger:  logger,
		pending: make(map[string]*pendingOrder),
		fills:   make(chan Fill, 64),
		rejects: make(chan Reject, 64),
		ctx:     ctx,
		cancel:  cancel,
	}

	g.wg.Add(1)
	go g.pollLoop()

	return g
}

func (g *REST) Fills() <-chan Fill     { return g.fills }
func (g *REST) Rejects() <-chan Reject { return g.rejects }

// Close stops the polling loop and closes the fill and reject channels.
func (g *REST) Close() error {
	g.cancel()
	g.wg.Wait()
	close(g.fills)
	close(g.rejects)
	return nil
}

func (g *REST) SubmitMarket(ctx context.Context, req Request) (Acknowledgement, error) {
	return g.submit(ctx, req, "MARKET")
}

func (g *REST) SubmitStop(ctx context.Context, req Request) (Acknowledgement, error) {
	return g.submit(ctx, req, "STOP_LOSS")
}

func (g *REST) SubmitLimit(ctx context.Context, req Request) (Acknowledgement, error) {
	return g.submit(ctx, req, "TAKE_PROFIT")
}

func (g *REST) submit(ctx context.Context, req Request, exchangeType string) (Acknowledgement, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	body := map[string]string{
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"qty":       req.Quantity.String(),
		"orderType": exchangeType,
	}
	if exchangeType != "MARKET" {
		body["stopPrice"] = req.StopPrice.String()
		if exchangeType == "TAKE_PROFIT" {
			body["stopPrice"] = req.Price.String()
		}
	}

	resp := &orderResp{}
	if err := g.post(ctx, "/api/v1/futures/trade/place_order", body, resp); err != nil {
		return Acknowledgement{}, err
	}
	if resp.Code != 0 {
		g.rejects <- Reject{ClientID: req.ClientID, Reason: fmt.Sprintf("%d %s", resp.Code, resp.Msg)}
		return Acknowledgement{ClientID: req.ClientID, Status: "rejected"}, nil
	}

	g.mu.Lock()
	g.pending[req.ClientID] = &pendingOrder{clientID: req.ClientID, req: req, submittedAt: time.Now()}
	g.mu.Unlock()

	return Acknowledgement{ClientID: req.ClientID, Status: "accepted"}, nil
}

func (g *REST) Cancel(ctx context.Context, clientID string) (Acknowledgement, error) {
	resp := &orderResp{}
	body := map[string]string{"clientOrderId": clientID}
	if err := g.post(ctx, "/api/v1/futures/trade/cancel_order", body, resp); err != nil {
		return Acknowledgement{}, err
	}
	g.mu.Lock()
	delete(g.pending, clientID)
	g.mu.Unlock()
	return Acknowledgement{ClientID: clientID, Status: "cancelled"}, nil
}

func (g *REST) Query(ctx context.Context, clientID string) (Acknowledgement, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.get(ctx, "/api/v1/futures/trade/order_status", map[string]string{"clientOrderId": clientID}, &resp); err != nil {
		return Acknowledgement{}, err
	}
	return Acknowledgement{ClientID: clientID, Status: resp.Status}, nil
}

func (g *REST) post(ctx context.Context, path string, body map[string]string, result interface{}) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := ts
	signature := sign(g.cfg.Secret, nonce, g.cfg.Key, ts)

	_, err := g.rest.R().
		SetContext(ctx).
		SetHeader("api-key", g.cfg.Key).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", signature).
		SetBody(body).
		SetResult(result).
		Post(g.cfg.BaseURL + path)
	return err
}

func (g *REST) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := ts
	signature := sign(g.cfg.Secret, nonce, g.cfg.Key, ts)

	_, err := g.rest.R().
		SetContext(ctx).
		SetHeader("api-key", g.cfg.Key).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", signature).
		SetQueryParams(params).
		SetResult(result).
		Get(g.cfg.BaseURL + path)
	return err
}

// pollLoop periodically queries every pending order's status, emitting
// fills and rejects as they resolve, mirroring the teacher's
// OrderTracker.monitorOrders loop.
func (g *REST) pollLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.checkPending()
		}
	}
}

func (g *REST) checkPending() {
	g.mu.Lock()
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		ack, err := g.Query(g.ctx, id)
		if err != nil {
			g.logger.Warn().Err(err).Str("client_id", id).Msg("gateway: order status query failed")
			continue
		}
		switch ack.Status {
		case "FILLED":
			g.mu.Lock()
			p, ok := g.pending[id]
			if ok {
				delete(g.pending, id)
			}
			g.mu.Unlock()
			if ok {
				g.fills <- Fill{ClientID: id, Price: p.req.Price, Quantity: p.req.Quantity, Ts: time.Now()}
			}
		case "REJECTED", "CANCELLED":
			g.mu.Lock()
			delete(g.pending, id)
			g.mu.Unlock()
			g.rejects <- Reject{ClientID: id, Reason: ack.Status}
		}
	}
}
