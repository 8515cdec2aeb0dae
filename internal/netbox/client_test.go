package netbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Options{
		URL:     server.URL,
		Token:   "secret",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAPIURL(t *testing.T) {
	cases := map[string]string{
		"":                                "",
		"http://192.168.253.134":          "http://192.168.253.134/api",
		" https://netbox.example.com/ ":   "https://netbox.example.com/api",
		"https://netbox.example.com/api":  "https://netbox.example.com/api",
		"https://netbox.example.com/api/": "https://netbox.example.com/api",
		"https://example.com/netbox":      "https://example.com/netbox/api",
	}
	for raw, want := range cases {
		if got := apiURL(raw); got != want {
			t.Fatalf("apiURL(%q)=%q want %q", raw, got, want)
		}
	}
}

// TestGetTagFound tests lookup request shape and decoding
func TestGetTagFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/extras/tags/" {
			t.Errorf("path = %s, want /api/extras/tags/", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "auto-register" {
			t.Errorf("name filter = %q, want auto-register", got)
		}
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q, want %q", got, "Token secret")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID not set")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   1,
			"results": []map[string]any{{"id": 7, "name": "auto-register", "slug": "auto-register"}},
		})
	})

	tag, found, err := client.GetTag(context.Background(), "auto-register")
	if err != nil {
		t.Fatalf("GetTag() error = %v", err)
	}
	if !found {
		t.Fatal("GetTag() found = false, want true")
	}
	if tag.ID != 7 || tag.Slug != "auto-register" {
		t.Errorf("GetTag() = %+v", tag)
	}
}

// TestGetNotFound tests that an empty result set is not an error
func TestGetNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	})

	role, found, err := client.GetDeviceRole(context.Background(), "Server")
	if err != nil {
		t.Fatalf("GetDeviceRole() error = %v", err)
	}
	if found || role != nil {
		t.Errorf("GetDeviceRole() = %+v, %v; want nil, false", role, found)
	}
}

// TestGetMultipleResults tests that ambiguous natural keys are rejected
func TestGetMultipleResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"count": 2,
			"results": []map[string]any{
				{"id": 1, "model": "Generic Server"},
				{"id": 2, "model": "Generic Server"},
			},
		})
	})

	_, _, err := client.GetDeviceType(context.Background(), "Generic Server")
	if !errors.Is(err, ErrMultipleResults) {
		t.Fatalf("GetDeviceType() error = %v, want ErrMultipleResults", err)
	}
}

// TestGetDeviceFilters tests the (name, site) device lookup
func TestGetDeviceFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/dcim/devices/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("name") != "web-01" || q.Get("site_id") != "3" {
			t.Errorf("query = %s, want name=web-01 site_id=3", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   1,
			"results": []map[string]any{{"id": 42, "name": "web-01", "site": map[string]any{"id": 3}}},
		})
	})

	device, found, err := client.GetDevice(context.Background(), "web-01", 3)
	if err != nil || !found {
		t.Fatalf("GetDevice() = %v, %v", found, err)
	}
	if device.ID != 42 || device.Site == nil || device.Site.ID != 3 {
		t.Errorf("GetDevice() = %+v", device)
	}
}

// TestCreateDevice tests the create request body
func TestCreateDevice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["name"] != "web-01" || body["status"] != "active" {
			t.Errorf("body = %v", body)
		}
		if body["role"] != float64(4) || body["device_type"] != float64(5) || body["site"] != float64(1) {
			t.Errorf("body ids = %v", body)
		}
		tags, _ := body["tags"].([]any)
		if len(tags) != 1 || tags[0] != float64(9) {
			t.Errorf("tags = %v, want [9]", body["tags"])
		}

		writeJSON(w, http.StatusCreated, map[string]any{"id": 42, "name": "web-01"})
	})

	device, err := client.CreateDevice(context.Background(), DeviceRequest{
		Name:       "web-01",
		Role:       4,
		DeviceType: 5,
		Site:       1,
		Status:     "active",
		Tags:       []int{9},
	})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if device.ID != 42 {
		t.Errorf("CreateDevice() id = %d, want 42", device.ID)
	}
}

// TestCreateIPAddress tests the interface assignment fields
func TestCreateIPAddress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ipam/ip-addresses/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body IPAddressRequest
		json.Unmarshal(raw, &body)
		if body.AssignedObjectType != "dcim.interface" || body.AssignedObjectID != 11 || body.Address != "10.0.0.5/24" {
			t.Errorf("body = %s", raw)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 99, "address": "10.0.0.5/24"})
	})

	ip, err := client.CreateIPAddress(context.Background(), IPAddressRequest{
		Address:            "10.0.0.5/24",
		Status:             "active",
		AssignedObjectType: AssignedObjectInterface,
		AssignedObjectID:   11,
	})
	if err != nil {
		t.Fatalf("CreateIPAddress() error = %v", err)
	}
	if ip.ID != 99 {
		t.Errorf("CreateIPAddress() id = %d, want 99", ip.ID)
	}
}

// TestBackendErrors tests status code mapping
func TestBackendErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantStatus int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"Invalid token"}`, wantErr: ErrNotAuthorized, wantStatus: 401},
		{name: "forbidden", status: http.StatusForbidden, body: `{"detail":"denied"}`, wantErr: ErrNotAuthorized, wantStatus: 403},
		{name: "validation", status: http.StatusBadRequest, body: `{"slug":["already exists"]}`, wantErr: ErrUnexpectedStatus, wantStatus: 400},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: ErrUnexpectedStatus, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.CreateManufacturer(context.Background(), ManufacturerRequest{Name: "Generic", Slug: "generic"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateManufacturer() error = %v, want %v", err, tt.wantErr)
			}

			var backendErr *BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("error type = %T, want *BackendError", err)
			}
			if backendErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", backendErr.StatusCode, tt.wantStatus)
			}
			if backendErr.Resource != ResourceManufacturers || backendErr.Op != "create" {
				t.Errorf("BackendError = %+v", backendErr)
			}
			if backendErr.Body != tt.body {
				t.Errorf("Body = %q, want %q", backendErr.Body, tt.body)
			}
		})
	}
}

// TestTransportError tests that connection failures become BackendErrors
func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{URL: url, Token: "secret", Timeout: time.Second}, nil)
	_, _, err := client.GetTag(context.Background(), "auto-register")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("GetTag() error = %v, want *BackendError", err)
	}
	if backendErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", backendErr.StatusCode)
	}
}

// TestMalformedResponse tests JSON decode failures
func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>login</html>"))
	})

	_, _, err := client.GetManufacturer(context.Background(), "Generic")
	if err == nil {
		t.Fatal("GetManufacturer() error = nil, want parse error")
	}
}

// TestBearerScheme tests the alternative Authorization scheme
func TestBearerScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer nbt_abc" {
			t.Errorf("Authorization = %q, want Bearer nbt_abc", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"netbox-version": "4.4.1", "python-version": "3.12.3"})
	}))
	defer server.Close()

	client := NewClient(Options{URL: server.URL, Token: "nbt_abc", Scheme: "Bearer"}, zap.NewNop())
	info, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if info.NetBoxVersion != "4.4.1" {
		t.Errorf("NetBoxVersion = %q, want 4.4.1", info.NetBoxVersion)
	}
}

// TestProvisionToken tests the token exchange
func TestProvisionToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/tokens/provision/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Authorization sent during provisioning: %q", r.Header.Get("Authorization"))
		}
		var body provisionRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "registrar" || body.Password != "hunter2" {
			t.Errorf("body = %+v", body)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 3, "key": "0123456789abcdef"})
	})

	token, err := client.ProvisionToken(context.Background(), "registrar", "hunter2")
	if err != nil {
		t.Fatalf("ProvisionToken() error = %v", err)
	}
	if token != "0123456789abcdef" {
		t.Errorf("ProvisionToken() = %q", token)
	}
	if client.token != "secret" {
		t.Errorf("client token after provisioning = %q, want original restored", client.token)
	}
}

// TestProvisionTokenEmpty tests a response without a key
func TestProvisionTokenEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 3})
	})

	if _, err := client.ProvisionToken(context.Background(), "registrar", "hunter2"); err == nil {
		t.Fatal("ProvisionToken() error = nil, want error")
	}
}
