package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"staffbot/internal/apperr"
	"staffbot/internal/names"
	logx "staffbot/pkg/logx"
)

const bitrixPageSize = 50

// BitrixProvider lists active employees through a Bitrix24 inbound webhook
// (https://<portal>/rest/<user>/<token>/).
type BitrixProvider struct {
	webhook  string
	client   *http.Client
	limiter  *rate.Limiter
	pageSize int
	log      logx.Logger
}

type BitrixOption func(*BitrixProvider)

func WithHTTPClient(c *http.Client) BitrixOption {
	return func(p *BitrixProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithRateLimit caps requests per second; the portal allows about 2.
func WithRateLimit(perSec int) BitrixOption {
	return func(p *BitrixProvider) {
		if perSec > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

func WithPageSize(n int) BitrixOption {
	return func(p *BitrixProvider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

func WithBitrixLogger(log logx.Logger) BitrixOption {
	return func(p *BitrixProvider) { p.log = log }
}

func NewBitrixProvider(webhook string, opts ...BitrixOption) *BitrixProvider {
	if !strings.HasSuffix(webhook, "/") {
		webhook += "/"
	}
	p := &BitrixProvider{
		webhook:  webhook,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(2, 1),
		pageSize: bitrixPageSize,
		log:      logx.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type bitrixUser struct {
	ID         string `json:"ID"`
	Name       string `json:"NAME"`
	LastName   string `json:"LAST_NAME"`
	SecondName string `json:"SECOND_NAME"`
	Login      string `json:"LOGIN"`
}

// FullName is "LAST NAME SECOND_NAME", falling back to the login.
func (u bitrixUser) FullName() string {
	full := strings.Join(strings.Fields(u.LastName+" "+u.Name+" "+u.SecondName), " ")
	if full == "" {
		return u.Login
	}
	return full
}

type bitrixPage struct {
	Result           []bitrixUser `json:"result"`
	Next             *int         `json:"next"`
	Total            int          `json:"total"`
	Error            string       `json:"error"`
	ErrorDescription string       `json:"error_description"`
}

func (p *BitrixProvider) CurrentNames(ctx context.Context) (names.Set, error) {
	set := names.Set{}
	start := 0
	for page := 0; ; page++ {
		users, next, err := p.fetchPage(ctx, start)
		if err != nil {
			return nil, apperr.External("bitrix24", err)
		}
		for _, u := range users {
			set.Add(u.FullName())
		}
		if next == nil || len(users) < p.pageSize {
			p.log.Debug("bitrix roster fetched", logx.Int("pages", page+1), logx.Int("names", set.Len()))
			return set, nil
		}
		start = *next
	}
}

func (p *BitrixProvider) fetchPage(ctx context.Context, start int) ([]bitrixUser, *int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("ACTIVE", "true")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.webhook+"user.get.json?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var body bitrixPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("user.get: decode (status %d): %w", resp.StatusCode, err)
	}
	if body.Error != "" {
		return nil, nil, fmt.Errorf("user.get: %s: %s", body.Error, body.ErrorDescription)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("user.get: status %d", resp.StatusCode)
	}
	return body.Result, body.Next, nil
}
