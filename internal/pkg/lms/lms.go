package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CourseMode is an enrollment mode known to the LMS for a course run.
type CourseMode struct {
	ModeSlug string `json:"mode_slug"`
}

// CourseModeRequest creates a mode on the LMS.
type CourseModeRequest struct {
	CourseID        string `json:"course_id"`
	ModeSlug        string `json:"mode_slug"`
	ModeDisplayName string `json:"mode_display_name"`
	Currency        string `json:"currency"`
	MinPrice        int    `json:"min_price"`
}

// StatusError is returned for a non-success LMS response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lms request failed with status %d: %s", e.Status, e.Body)
}

// Client talks to the LMS course-mode API.
type Client struct {
	http          *http.Client
	coursemodeURL string
}

// New builds a client for the given course-mode API root.
func New(httpClient *http.Client, coursemodeURL string) (*Client, error) {
	coursemodeURL = strings.TrimSpace(coursemodeURL)
	if coursemodeURL == "" {
		return nil, fmt.Errorf("lms coursemode api url is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, coursemodeURL: strings.TrimRight(coursemodeURL, "/")}, nil
}

// CourseURL returns the course-mode collection URL of a run.
func (c *Client) CourseURL(courseKey string) string {
	return c.coursemodeURL + "/courses/" + courseKey + "/"
}

// CourseModes lists the modes currently configured for a run.
func (c *Client) CourseModes(ctx context.Context, courseKey string) ([]CourseMode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CourseURL(courseKey), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &StatusError{Status: status, Body: string(raw)}
	}

	var modes []CourseMode
	if err := json.Unmarshal(raw, &modes); err != nil {
		return nil, fmt.Errorf("decode course modes: %w", err)
	}
	return modes, nil
}

// CreateCourseMode adds a mode to a run.
func (c *Client) CreateCourseMode(ctx context.Context, mode CourseModeRequest) error {
	body, err := json.Marshal(mode)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CourseURL(mode.CourseID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{Status: status, Body: string(raw)}
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("lms %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}
