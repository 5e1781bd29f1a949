package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/webrtc"
)

func newTestFetcher(url string) *Fetcher {
	return NewFetcher(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchBuildsRelayServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"username":"u","password":"p"}`)
	}))
	defer srv.Close()

	servers, err := newTestFetcher(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := webrtc.ICEServer{
		Hostname:  "74.208.44.199",
		Port:      3478,
		Username:  "u",
		Password:  "p",
		RelayType: webrtc.RelayTurnUDP,
	}
	if len(servers) != 1 || servers[0] != want {
		t.Fatalf("servers = %+v, want [%+v]", servers, want)
	}
	if got := servers[0].URL(); got != "turn:74.208.44.199:3478?transport=udp" {
		t.Errorf("URL = %q", got)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			servers, err := newTestFetcher(srv.URL).Fetch(context.Background())
			if !errors.Is(err, failure.ErrCredentialFetch) {
				t.Fatalf("err = %v, want ErrCredentialFetch", err)
			}
			if len(servers) != 0 {
				t.Errorf("servers = %+v, want none", servers)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := newTestFetcher(url).Fetch(context.Background()); !errors.Is(err, failure.ErrCredentialFetch) {
		t.Fatalf("err = %v, want ErrCredentialFetch", err)
	}
}
