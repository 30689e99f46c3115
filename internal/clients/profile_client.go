// internal/clients/profile_client.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"memberportal/internal/access"
	"memberportal/internal/retry"
)

var ErrProfileNotFound = errors.New("profile not found")

// profile is the wire shape served by the profile service.
type profile struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Tier             string    `json:"membership_tier"`
	BillingPlan      string    `json:"billing_plan"`
	MembershipStatus string    `json:"membership_status"`
	VolunteerStatus  string    `json:"volunteer_status"`
}

// ProfileClient reads principals from the profile service.
type ProfileClient struct {
	baseURL string
	http    *http.Client
	retry   retry.Policy
}

func NewProfileClient(baseURL string, httpClient *http.Client, policy retry.Policy) *ProfileClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProfileClient{baseURL: baseURL, http: httpClient, retry: policy}
}

// Principal fetches the profile for id. Reads are retried with backoff; a missing
// profile is not.
func (c *ProfileClient) Principal(ctx context.Context, id uuid.UUID) (*access.Principal, error) {
	return retry.Read(ctx, c.retry, func(ctx context.Context) (*access.Principal, error) {
		return c.fetch(ctx, id)
	}, func(err error) bool { return errors.Is(err, ErrProfileNotFound) })
}

func (c *ProfileClient) fetch(ctx context.Context, id uuid.UUID) (*access.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/profiles/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrProfileNotFound
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var p profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}

	return &access.Principal{
		ID:               p.ID,
		Email:            p.Email,
		Role:             access.Role(p.Role),
		Tier:             access.Tier(p.Tier),
		BillingPlan:      access.BillingPlan(p.BillingPlan),
		MembershipStatus: access.MembershipStatus(p.MembershipStatus),
		VolunteerStatus:  access.VolunteerStatus(p.VolunteerStatus),
	}, nil
}
