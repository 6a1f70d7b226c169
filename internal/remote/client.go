package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Product is the remote service's wire representation.
type Product struct {
	ID                 int     `json:"id"`
	Title              string  `json:"title"`
	Price              float64 `json:"price"`
	Category           string  `json:"category"`
	Stock              int     `json:"stock"`
	Description        string  `json:"description"`
	Brand              string  `json:"brand"`
	Thumbnail          string  `json:"thumbnail"`
	Rating             float64 `json:"rating"`
	DiscountPercentage float64 `json:"discountPercentage"`
}

type ListQuery struct {
	Search string
	Limit  int
	Skip   int
}

type ListResult struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
}

type CreateBody struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Stock       int     `json:"stock"`
	Description string  `json:"description"`
	Brand       string  `json:"brand"`
	Thumbnail   string  `json:"thumbnail"`
}

type UpdateBody struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Stock    int     `json:"stock"`
}

var (
	ErrNotFound    = errors.New("remote product not found")
	ErrBadStatus   = errors.New("remote bad status")
	ErrUnavailable = errors.New("remote unavailable")
)

// Client talks to the external product service. It holds no state and
// performs no retries; callers own retry and consistency policy.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 3 * time.Second},
	}
}

// List fetches a product page. A non-empty search term routes to the
// server-side search endpoint, otherwise the plain listing endpoint.
func (c *Client) List(ctx context.Context, q ListQuery) (ListResult, error) {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("skip", strconv.Itoa(q.Skip))

	path := "/products"
	if q.Search != "" {
		path = "/products/search"
	}

	var out ListResult
	if err := c.do(ctx, http.MethodGet, path+"?"+v.Encode(), nil, &out); err != nil {
		return ListResult{}, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, body CreateBody) (Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "/products/add", body, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id int, body UpdateBody) (Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d", id), body, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id int) (Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status=%d", ErrBadStatus, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
