package jellyfin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AppName is the client name reported in the MediaBrowser auth header.
const AppName = "Botify"

// AppVersion is the version reported in the MediaBrowser auth header.
const AppVersion = "0.1.0"

const requestTimeout = 15 * time.Second

// Identity describes this installation to the server, independent of any
// user account.
type Identity struct {
	DeviceID   string
	DeviceName string
}

// Client is a typed wrapper over the Jellyfin HTTP API.
type Client struct {
	log      *zap.Logger
	http     *http.Client
	server   string
	identity Identity
	token    string
	userID   string
}

// NewClient creates a client for the given server. The server string is
// normalized before use.
func NewClient(log *zap.Logger, server string, identity Identity) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:      log,
		http:     &http.Client{Timeout: requestTimeout},
		server:   NormalizeServer(server),
		identity: identity,
	}
}

// NormalizeServer trims whitespace, defaults the scheme to http:// and
// strips any trailing slash. It is idempotent.
func NormalizeServer(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "http://" + s
	}
	return strings.TrimRight(s, "/")
}

// Server returns the normalized server base URL.
func (c *Client) Server() string { return c.server }

// SetCredentials installs a token/user pair after authentication. Token and
// user id always travel together.
func (c *Client) SetCredentials(token, userID string) {
	c.token = token
	c.userID = userID
}

// ClearCredentials drops the token/user pair on logout.
func (c *Client) ClearCredentials() {
	c.token = ""
	c.userID = ""
}

// AuthHeader builds the MediaBrowser authorization header. The Token field
// is present iff a token is set; pre-auth calls carry the header without it.
func (c *Client) AuthHeader() string {
	parts := []string{
		fmt.Sprintf("Client=%q", AppName),
		fmt.Sprintf("Device=%q", c.identity.DeviceName),
		fmt.Sprintf("DeviceId=%q", c.identity.DeviceID),
		fmt.Sprintf("Version=%q", AppVersion),
	}
	if c.token != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", c.token))
	}
	return "MediaBrowser " + strings.Join(parts, ", ")
}

// QuickConnectSession is a pairing code/secret pair issued by the server.
type QuickConnectSession struct {
	Code   string `json:"Code"`
	Secret string `json:"Secret"`
}

// QuickConnectState is a poll result. A non-empty Error marks the session
// as terminally unusable.
type QuickConnectState struct {
	Authenticated bool   `json:"Authenticated"`
	Error         string `json:"Error"`
}

// Credentials is a token/user pair returned by an authentication call.
type Credentials struct {
	Token  string
	UserID string
}

// Track is a server-provided audio item record.
type Track struct {
	ID           string   `json:"Id"`
	Name         string   `json:"Name"`
	Album        string   `json:"Album"`
	Artists      []string `json:"Artists"`
	RunTimeTicks int64    `json:"RunTimeTicks"`
	ParentID     string   `json:"ParentId"`
}

// QuickConnectEnabled probes whether the server has Quick Connect enabled.
func (c *Client) QuickConnectEnabled() (bool, error) {
	var enabled bool
	if err := c.doJSON(http.MethodGet, "/QuickConnect/Enabled", nil, nil, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// QuickConnectInitiate asks the server for a new pairing code/secret pair.
func (c *Client) QuickConnectInitiate() (QuickConnectSession, error) {
	var session QuickConnectSession
	if err := c.doJSON(http.MethodPost, "/QuickConnect/Initiate", nil, nil, &session); err != nil {
		return QuickConnectSession{}, err
	}
	return session, nil
}

// QuickConnectPoll checks whether the pairing secret has been approved. A
// secret unknown to the server (404) is reported as an unauthenticated state
// with an error string rather than raised.
func (c *Client) QuickConnectPoll(secret string) (QuickConnectState, error) {
	params := url.Values{}
	params.Set("secret", secret)

	status, payload, err := c.do(http.MethodGet, "/QuickConnect/Connect", params, nil)
	if err != nil {
		return QuickConnectState{}, err
	}
	if status == http.StatusNotFound {
		return QuickConnectState{Authenticated: false, Error: "unknown quick connect secret"}, nil
	}
	if status >= 400 {
		return QuickConnectState{}, &RequestError{Status: status, Body: string(payload)}
	}

	var state QuickConnectState
	if err := json.Unmarshal(payload, &state); err != nil {
		return QuickConnectState{}, fmt.Errorf("decode poll response: %w", err)
	}
	return state, nil
}

type authResponse struct {
	AccessToken       string `json:"AccessToken"`
	AccessTokenString string `json:"AccessTokenString"`
	User              struct {
		ID string `json:"Id"`
	} `json:"User"`
}

// QuickConnectExchange trades an approved pairing secret for a session
// token. The credentials are installed on the client on success.
func (c *Client) QuickConnectExchange(secret string) (Credentials, error) {
	body := map[string]string{"Secret": secret}

	var resp authResponse
	if err := c.doJSON(http.MethodPost, "/Users/AuthenticateWithQuickConnect", nil, body, &resp); err != nil {
		return Credentials{}, err
	}
	return c.installCredentials(resp)
}

// AuthenticateByName performs a username/password login.
func (c *Client) AuthenticateByName(username, password string) (Credentials, error) {
	body := map[string]string{"Username": username, "Pw": password}

	var resp authResponse
	if err := c.doJSON(http.MethodPost, "/Users/AuthenticateByName", nil, body, &resp); err != nil {
		return Credentials{}, err
	}
	return c.installCredentials(resp)
}

func (c *Client) installCredentials(resp authResponse) (Credentials, error) {
	token := resp.AccessToken
	if token == "" {
		token = resp.AccessTokenString
	}
	if token == "" {
		return Credentials{}, &AuthExchangeError{Missing: "a token"}
	}
	if resp.User.ID == "" {
		return Credentials{}, &AuthExchangeError{Missing: "a user id"}
	}

	creds := Credentials{Token: token, UserID: resp.User.ID}
	c.SetCredentials(creds.Token, creds.UserID)
	return creds, nil
}

type itemsResponse struct {
	Items []Track `json:"Items"`
}

// ListTracks fetches all audio tracks for the authenticated user, in the
// server's name-sorted order.
func (c *Client) ListTracks() ([]Track, error) {
	if c.userID == "" {
		return nil, ErrNotAuthenticated
	}

	endpoint := fmt.Sprintf("/Users/%s/Items", url.PathEscape(c.userID))
	params := url.Values{}
	params.Set("IncludeItemTypes", "Audio")
	params.Set("Recursive", "true")
	params.Set("Fields", "Album,Artists,RunTimeTicks,ParentId")
	params.Set("SortBy", "SortName")
	params.Set("SortOrder", "Ascending")

	var resp itemsResponse
	if err := c.doJSON(http.MethodGet, endpoint, params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// StreamURL builds the direct stream URL for a track, with the current token
// embedded as a query credential. No request is performed.
func (c *Client) StreamURL(itemID string) string {
	u, _ := url.Parse(c.server)
	u.Path = path.Join(u.Path, "/Audio/", itemID, "/stream")
	q := u.Query()
	q.Set("static", "true")
	q.Set("api_key", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ImageURL builds an image URL for an item (Primary/Thumb/Backdrop). No
// request is performed.
func (c *Client) ImageURL(itemID string, kind string, maxSide int) string {
	u, _ := url.Parse(c.server)
	u.Path = path.Join(u.Path, "/Items/", itemID, "/Images/", kind)
	q := u.Query()
	q.Set("maxSide", fmt.Sprintf("%d", maxSide))
	q.Set("quality", "90")
	q.Set("api_key", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) doJSON(method string, endpoint string, params url.Values, body any, out any) error {
	status, payload, err := c.do(method, endpoint, params, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return &RequestError{Status: status, Body: string(payload)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(method string, endpoint string, params url.Values, body any) (int, []byte, error) {
	endpointURL := c.server + endpoint
	if len(params) > 0 {
		endpointURL += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s: %w", endpoint, err)
		}
	}

	req, err := http.NewRequest(method, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.AuthHeader())

	c.log.Debug("jellyfin request", zap.String("method", method), zap.String("endpoint", endpoint))

	// Only failures on the wire count as network errors; request
	// construction and decode problems keep their own types.
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &NetworkError{Op: method + " " + endpoint, Err: err}
	}
	return resp.StatusCode, data, nil
}
