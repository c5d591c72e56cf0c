package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/apperrors"
	"github.com/restalytics/etl-engine/pkg/config"
	"github.com/restalytics/etl-engine/pkg/models"
)

const (
	apiClient        = "1"
	apiClientVersion = "196"
)

// Client is the ordering platform API client. It logs in once for a
// session token, then pulls paginated order lists and per-order detail.
// Network failures and server errors are wrapped as transient so the
// orchestrator's retry policy applies; client errors are permanent.
type Client struct {
	baseURL  string
	pageSize int
	email    string
	password string
	http     *http.Client
	logger   *zap.Logger

	sessionToken   string
	restaurantID   int64
	restaurantName string
	companyID      int64
	companyName    string
}

// NewClient creates an API client from configuration.
func NewClient(cfg config.APIConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		email:    cfg.Email,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.Named("extract"),
	}
}

type loginResponse struct {
	SessionToken string `json:"SessionToken"`
	Restaurant   struct {
		ID   int64  `json:"ID"`
		Name string `json:"Name"`
	} `json:"Restaurant"`
	Company struct {
		ID   int64  `json:"ID"`
		Name string `json:"Name"`
	} `json:"Company"`
}

// Login authenticates against the platform and stores the session token
// and restaurant identity for subsequent pulls. Credentials are never
// logged.
func (c *Client) Login(ctx context.Context) error {
	params := url.Values{
		"email":            {c.email},
		"password":         {c.password},
		"apiClient":        {apiClient},
		"apiClientVersion": {apiClientVersion},
	}

	body, err := c.do(ctx, http.MethodPost, "/Account/Login", params)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("login: failed to parse response: %w", err)
	}
	if resp.SessionToken == "" {
		return fmt.Errorf("login: session token not found in response")
	}

	c.sessionToken = resp.SessionToken
	c.restaurantID = resp.Restaurant.ID
	c.restaurantName = resp.Restaurant.Name
	c.companyID = resp.Company.ID
	c.companyName = resp.Company.Name

	c.logger.Info("login successful",
		zap.String("company", c.companyName),
		zap.String("restaurant", c.restaurantName))
	return nil
}

// RestaurantID returns the restaurant identity bound to the session.
func (c *Client) RestaurantID() int64 { return c.restaurantID }

// RestaurantName returns the restaurant name bound to the session.
func (c *Client) RestaurantName() string { return c.restaurantName }

type orderListResponse struct {
	Data []orderListItem `json:"Data"`
}

type orderListItem struct {
	ID           int64  `json:"ID"`
	CreationDate string `json:"CreationDate"`
}

type orderDetailResponse struct {
	Data orderPayload `json:"Data"`
}

type orderPayload struct {
	ID            int64              `json:"ID"`
	CreationDate  string             `json:"CreationDate"`
	Status        int                `json:"Status"`
	DeliveryType  int                `json:"DeliveryType"`
	OrderMethod   int                `json:"OrderMethod"`
	SubTotal      float64            `json:"SubTotal"`
	DeliveryFee   float64            `json:"DeliveryFee"`
	ServiceCharge float64            `json:"ServiceCharge"`
	Discount      float64            `json:"Discount"`
	Total         *float64           `json:"Total"`
	UsedPoints    int                `json:"UsedPoints"`
	Customer      customerPayload    `json:"Customer"`
	Restaurant    restaurantPayload  `json:"Restaurant"`
	Promotion     *promotionPayload  `json:"Promotion"`
	Payments      []paymentPayload   `json:"Payments"`
}

type customerPayload struct {
	ID                      int64  `json:"ID"`
	FullName                string `json:"FullName"`
	Email                   string `json:"Email"`
	Mobile                  string `json:"Mobile"`
	IsEmailMarketingAllowed bool   `json:"IsEmailMarketingAllowed"`
	IsSmsMarketingAllowed   bool   `json:"IsSmsMarketingAllowed"`
}

type restaurantPayload struct {
	ID   int64  `json:"ID"`
	Name string `json:"Name"`
}

type promotionPayload struct {
	ID             int64   `json:"ID"`
	Name           string  `json:"Name"`
	CouponCode     string  `json:"CouponCode"`
	DiscountAmount float64 `json:"DiscountAmount"`
}

type paymentPayload struct {
	ID                int64   `json:"ID"`
	PaymentMethodID   int64   `json:"PaymentMethodID"`
	PaymentMethodName string  `json:"PaymentMethodName"`
	Amount            float64 `json:"Amount"`
	Tip               float64 `json:"Tip"`
	Tax               float64 `json:"Tax"`
	Status            int     `json:"Status"`
	PaymentDate       string  `json:"PaymentDate"`
}

// Pull walks the order list pages (newest first) collecting orders newer
// than the cursor, fetches detail for each, and returns them oldest
// first. Pagination stops once a whole page is at or behind the cursor,
// so re-fetching is bounded.
func (c *Client) Pull(ctx context.Context, cursor Cursor, limit int) ([]models.RawOrder, error) {
	if c.sessionToken == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	var orders []models.RawOrder
	checkpoint := &models.SyncCheckpoint{
		LastOrderID:   cursor.LastOrderID,
		LastOrderDate: cursor.LastOrderDate,
	}

	for pageIndex := 0; len(orders) < limit; pageIndex++ {
		page, err := c.fetchOrderList(ctx, pageIndex)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		newOnPage := 0
		for _, item := range page {
			createdAt, err := parseAPITime(item.CreationDate)
			if err != nil {
				c.logger.Warn("skipping order with unparseable creation date",
					zap.Int64("order_id", item.ID),
					zap.String("creation_date", item.CreationDate))
				continue
			}
			if !checkpoint.ShouldProcess(item.ID, createdAt) {
				continue
			}
			newOnPage++

			raw, err := c.fetchOrderDetail(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *raw)
			if len(orders) >= limit {
				break
			}
		}

		// Everything on this page (and all older pages) is already synced.
		if newOnPage == 0 {
			break
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders, nil
}

func (c *Client) fetchOrderList(ctx context.Context, pageIndex int) ([]orderListItem, error) {
	params := url.Values{
		"pageSize":     {strconv.Itoa(c.pageSize)},
		"pageIndex":    {strconv.Itoa(pageIndex)},
		"sessionToken": {c.sessionToken},
	}

	body, err := c.do(ctx, http.MethodGet, "/Order/List", params)
	if err != nil {
		return nil, fmt.Errorf("fetch order list page %d: %w", pageIndex, err)
	}

	var resp orderListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("fetch order list page %d: failed to parse response: %w", pageIndex, err)
	}
	return resp.Data, nil
}

func (c *Client) fetchOrderDetail(ctx context.Context, orderID int64) (*models.RawOrder, error) {
	params := url.Values{
		"ID":           {strconv.FormatInt(orderID, 10)},
		"SessionToken": {c.sessionToken},
	}

	body, err := c.do(ctx, http.MethodGet, "/Order/Detail", params)
	if err != nil {
		return nil, fmt.Errorf("fetch order detail %d: %w", orderID, err)
	}

	var resp orderDetailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("fetch order detail %d: failed to parse response: %w", orderID, err)
	}

	return c.mapOrder(resp.Data)
}

func (c *Client) mapOrder(p orderPayload) (*models.RawOrder, error) {
	createdAt, err := parseAPITime(p.CreationDate)
	if err != nil {
		return nil, fmt.Errorf("order %d: invalid creation date %q: %w", p.ID, p.CreationDate, err)
	}

	raw := &models.RawOrder{
		ID:            p.ID,
		CreatedAt:     createdAt,
		Status:        p.Status,
		DeliveryType:  p.DeliveryType,
		OrderMethod:   p.OrderMethod,
		SubTotal:      p.SubTotal,
		DeliveryFee:   p.DeliveryFee,
		ServiceCharge: p.ServiceCharge,
		Discount:      p.Discount,
		Total:         p.Total,
		UsedPoints:    p.UsedPoints,
		Customer: models.RawCustomer{
			ID:             p.Customer.ID,
			FullName:       p.Customer.FullName,
			Email:          p.Customer.Email,
			Mobile:         p.Customer.Mobile,
			EmailMarketing: p.Customer.IsEmailMarketingAllowed,
			SMSMarketing:   p.Customer.IsSmsMarketingAllowed,
		},
		Restaurant: models.RawRestaurant{
			ID:          p.Restaurant.ID,
			Name:        p.Restaurant.Name,
			CompanyID:   c.companyID,
			CompanyName: c.companyName,
		},
	}

	if p.Promotion != nil {
		raw.Promotion = &models.RawPromotion{
			ID:             p.Promotion.ID,
			Name:           p.Promotion.Name,
			CouponCode:     p.Promotion.CouponCode,
			DiscountAmount: p.Promotion.DiscountAmount,
		}
	}

	for _, pay := range p.Payments {
		paidAt := time.Time{}
		if pay.PaymentDate != "" {
			if t, err := parseAPITime(pay.PaymentDate); err == nil {
				paidAt = t
			}
		}
		raw.Payments = append(raw.Payments, models.RawPayment{
			ID:         pay.ID,
			MethodID:   pay.PaymentMethodID,
			MethodName: pay.PaymentMethodName,
			Amount:     pay.Amount,
			Tip:        pay.Tip,
			Tax:        pay.Tax,
			Status:     pay.Status,
			PaidAt:     paidAt,
		})
	}

	return raw, nil
}

// do performs one API request and classifies failures: network errors
// and 5xx/429 responses are transient, other non-2xx are permanent.
func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transient(method+" "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Transient(method+" "+path, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.Transient(method+" "+path,
			fmt.Errorf("server returned %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	return body, nil
}

var apiTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseAPITime(s string) (time.Time, error) {
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
