// Package credentials fetches short-lived relay (TURN) credentials.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/webrtc"
)

const (
	DefaultURL       = "https://woomy.online/api/get-turn-credentials"
	DefaultRelayHost = "74.208.44.199"
	DefaultRelayPort = 3478

	maxBody = 16 * 1024
)

// Fetcher turns the credential endpoint's {username, password} into a relay
// server entry.
type Fetcher struct {
	URL        string
	HTTPClient *http.Client
	// Relay is the server the credentials are for. Username and Password
	// are filled in from the response.
	Relay  webrtc.ICEServer
	Logger *slog.Logger
}

type response struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewFetcher(url string, logger *slog.Logger) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Relay: webrtc.ICEServer{
			Hostname:  DefaultRelayHost,
			Port:      DefaultRelayPort,
			RelayType: webrtc.RelayTurnUDP,
		},
		Logger: logger,
	}
}

// Fetch returns one relay server, or no servers and an error wrapping
// failure.ErrCredentialFetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, failure.Cause("fetch credentials", "", failure.ErrCredentialFetch, err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, failure.Cause("fetch credentials", "", failure.ErrCredentialFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, failure.Wrap("fetch credentials", failure.ErrCredentialFetch, fmt.Sprintf("status %s", resp.Status))
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return nil, failure.Cause("decode credentials", "", failure.ErrCredentialFetch, err)
	}

	server := f.Relay
	server.Username = body.Username
	server.Password = body.Password
	f.Logger.Debug("fetched relay credentials", "relay", server.URL())
	return []webrtc.ICEServer{server}, nil
}
