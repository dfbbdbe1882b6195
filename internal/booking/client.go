package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"slipgate/pkg/sentinel"
)

// HTTPProvider pulls bookings from the reservation system's REST API.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// bookingPayload mirrors the reservation system's wire format.
type bookingPayload struct {
	ID             string `json:"id"`
	Reference      string `json:"reference"`
	OrganizationID string `json:"organization_id"`
	SchoolName     string `json:"school_name"`
	ProgramTitle   string `json:"program_title"`
	Status         string `json:"status"`
	ActivityDate   string `json:"activity_date"` // 2006-01-02
	ActivityTime   string `json:"activity_time"`
	Students       []struct {
		ID            string `json:"id"`
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		GuardianName  string `json:"guardian_name"`
		GuardianEmail string `json:"guardian_email"`
		GuardianPhone string `json:"guardian_phone"`
	} `json:"students"`
}

func (p *HTTPProvider) Booking(ctx context.Context, bookingID string) (*Booking, error) {
	endpoint := p.baseURL + "/bookings/" + url.PathEscape(bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build booking request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch booking %s: %w", bookingID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("booking %s: %w", bookingID, sentinel.ErrNotFound)
	default:
		return nil, fmt.Errorf("fetch booking %s: unexpected status %d", bookingID, resp.StatusCode)
	}

	var payload bookingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", bookingID, err)
	}

	activityDate, err := time.Parse("2006-01-02", payload.ActivityDate)
	if err != nil {
		return nil, fmt.Errorf("booking %s: invalid activity date %q", bookingID, payload.ActivityDate)
	}

	bk := &Booking{
		ID:             payload.ID,
		Reference:      payload.Reference,
		OrganizationID: payload.OrganizationID,
		SchoolName:     payload.SchoolName,
		ProgramTitle:   payload.ProgramTitle,
		Status:         payload.Status,
		ActivityDate:   activityDate,
		ActivityTime:   payload.ActivityTime,
	}
	for _, s := range payload.Students {
		bk.Students = append(bk.Students, Student(s))
	}
	return bk, nil
}
