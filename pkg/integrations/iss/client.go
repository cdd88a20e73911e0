package iss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultOpenNotifyUrl = "http://api.open-notify.org"
	defaultTleUrl        = "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=TLE"
)

type Astronaut struct {
	Name  string `json:"name"`
	Craft string `json:"craft"`
}

type People struct {
	Number int         `json:"number"`
	People []Astronaut `json:"people"`
}

// OnIss returns the names of the people aboard the ISS.
func (p People) OnIss() []string {
	names := []string{}
	for _, a := range p.People {
		if a.Craft == "ISS" {
			names = append(names, a.Name)
		}
	}
	return names
}

type Position struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// Client fetches the open-notify and celestrak endpoints.
type Client struct {
	httpClient    *http.Client
	openNotifyUrl string
	tleUrl        string
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient:    httpClient,
		openNotifyUrl: defaultOpenNotifyUrl,
		tleUrl:        defaultTleUrl,
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) PeopleInSpace(ctx context.Context) (People, error) {
	people := People{}
	body, err := c.get(ctx, c.openNotifyUrl+"/astros.json")
	if err != nil {
		return people, err
	}
	if err := json.Unmarshal(body, &people); err != nil {
		return people, fmt.Errorf("error decoding people in space: %w", err)
	}
	return people, nil
}

func (c *Client) Position(ctx context.Context) (Position, error) {
	var response struct {
		Message     string `json:"message"`
		Timestamp   int64  `json:"timestamp"`
		IssPosition struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"iss_position"`
	}
	body, err := c.get(ctx, c.openNotifyUrl+"/iss-now.json")
	if err != nil {
		return Position{}, err
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Position{}, fmt.Errorf("error decoding ISS position: %w", err)
	}
	if response.Message != "success" {
		return Position{}, fmt.Errorf("ISS position request failed: %s", response.Message)
	}
	lat, err := strconv.ParseFloat(response.IssPosition.Latitude, 64)
	if err != nil {
		return Position{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(response.IssPosition.Longitude, 64)
	if err != nil {
		return Position{}, fmt.Errorf("invalid longitude: %w", err)
	}
	return Position{Latitude: lat, Longitude: lon, Timestamp: time.Unix(response.Timestamp, 0).UTC()}, nil
}

func (c *Client) FetchTLE(ctx context.Context) (TLE, error) {
	body, err := c.get(ctx, c.tleUrl)
	if err != nil {
		return TLE{}, err
	}
	return ParseTLE(string(body))
}
