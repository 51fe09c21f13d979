package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/infra/config"
)

// Kinds of directory listings served by HEMIS.
const (
	KindEmployee = "employee"
	KindStudent  = "student"
)

var kindPaths = map[string]string{
	KindEmployee: "data/employee-list",
	KindStudent:  "data/student-list",
}

// Client fetches paged listings from the HEMIS REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient constructs a HEMIS directory client.
func NewClient(cfg config.DirectorySettings, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		logger:     logger,
	}
}

type listResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Items      []map[string]any `json:"items"`
		Pagination struct {
			Page       int `json:"page"`
			PageCount  int `json:"pageCount"`
			TotalCount int `json:"totalCount"`
			PerPage    int `json:"perPage"`
		} `json:"pagination"`
	} `json:"data"`
}

// FetchPage retrieves a single page of raw directory records.
func (c *Client) FetchPage(ctx context.Context, kind string, page, pageSize int) (*port.DirectoryPage, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown directory kind %q", kind)
	}

	if c.baseURL == "" {
		return nil, fmt.Errorf("directory base url is not configured")
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageSize))

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch directory page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read directory response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d for page %d", resp.StatusCode, page)
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	if !parsed.Success && parsed.Error != "" {
		return nil, fmt.Errorf("directory rejected request: %s", parsed.Error)
	}

	result := &port.DirectoryPage{
		Records:    parsed.Data.Items,
		Page:       parsed.Data.Pagination.Page,
		PageCount:  parsed.Data.Pagination.PageCount,
		TotalItems: parsed.Data.Pagination.TotalCount,
	}

	if result.Page == 0 {
		result.Page = page
	}

	c.logger.Debug("fetched directory page",
		zap.String("kind", kind),
		zap.Int("page", result.Page),
		zap.Int("page_count", result.PageCount),
		zap.Int("records", len(result.Records)),
	)

	return result, nil
}

var _ port.DirectoryClient = (*Client)(nil)
