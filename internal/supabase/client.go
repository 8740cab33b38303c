package supabase

import (
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

type Client struct {
	Supabase *supabase.Client
	baseURL  string
}

// NewClient builds a service-role client for the project at supabaseURL.
func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client, err := supabase.NewClient(baseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		baseURL:  baseURL,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
