package anwdlclient

import (
	"context"
	"errors"
	"time"

	"github.com/the-anweddol-project/anwdl-client-go/sanitize"
	"github.com/the-anweddol-project/anwdl-client-go/store"
	"github.com/the-anweddol-project/anwdl-client-go/transport"
)

// transportDoer is satisfied by both *transport.Session and
// *transport.HTTPSession; it is the one call shape orchestration needs,
// regardless of which wire transport the caller chose.
type transportDoer interface {
	Do(ctx context.Context, verb string, parameters map[string]any) (sanitize.Response, error)
}

// Client binds a Config and a transport choice to the three local stores,
// implementing the CREATE/DESTROY/STAT orchestration sequence.
type Client struct {
	cfg       Config
	transport transportDoer
}

// NewClient builds a Client around an already-connected transport (a
// *transport.Session past its handshake, or a *transport.HTTPSession).
func NewClient(cfg Config, t transportDoer) *Client {
	return &Client{cfg: cfg, transport: t}
}

// createOptions configures Create's auto-store behavior.
type createOptions struct {
	autoStore bool
}

// CreateOption configures a single Create call.
type CreateOption func(*createOptions)

// WithAutoStore overrides the default auto-store-on-success behavior of
// Create. The default is true.
func WithAutoStore(enabled bool) CreateOption {
	return func(o *createOptions) { o.autoStore = enabled }
}

// destroyOptions configures Destroy's auto-delete behavior.
type destroyOptions struct {
	autoDelete bool
}

// DestroyOption configures a single Destroy call.
type DestroyOption func(*destroyOptions)

// WithAutoDelete overrides the default auto-delete-on-success behavior of
// Destroy. The default is true.
func WithAutoDelete(enabled bool) DestroyOption {
	return func(o *destroyOptions) { o.autoDelete = enabled }
}

// Create issues a CREATE request. On success (and unless WithAutoStore(false)
// is passed) it stores one session row and one container row for (ip, port)
// using the fields in the response's session bundle.
func (c *Client) Create(ctx context.Context, ip string, port int, parameters map[string]any, opts ...CreateOption) (sanitize.Response, error) {
	cfg := createOptions{autoStore: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	parameters, err := c.attachAccessToken(ip, parameters)
	if err != nil {
		return sanitize.Response{}, err
	}

	resp, err := c.dispatch(ctx, "CREATE", parameters)
	if err != nil {
		return sanitize.Response{}, err
	}

	if cfg.autoStore {
		if err := c.storeCreateResult(ip, port, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Destroy issues a DESTROY request. On success (and unless
// WithAutoDelete(false) is passed) it deletes the caller-identified session
// row and, if present, the container row sharing its ServerIP.
func (c *Client) Destroy(ctx context.Context, ip string, port int, sessionEntryID int64, parameters map[string]any, opts ...DestroyOption) (sanitize.Response, error) {
	cfg := destroyOptions{autoDelete: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	parameters, err := c.attachAccessToken(ip, parameters)
	if err != nil {
		return sanitize.Response{}, err
	}

	resp, err := c.dispatch(ctx, "DESTROY", parameters)
	if err != nil {
		return sanitize.Response{}, err
	}

	if cfg.autoDelete {
		if err := c.deleteSessionAndContainer(ip, sessionEntryID); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Stat issues a STAT request. It never mutates a store.
func (c *Client) Stat(ctx context.Context, ip string, port int, parameters map[string]any) (sanitize.Response, error) {
	parameters, err := c.attachAccessToken(ip, parameters)
	if err != nil {
		return sanitize.Response{}, err
	}
	return c.dispatch(ctx, "STAT", parameters)
}

// attachAccessToken copies the stored access token for ip into parameters,
// if one exists. The caller's map is never mutated in place.
func (c *Client) attachAccessToken(ip string, parameters map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(parameters)+1)
	for k, v := range parameters {
		out[k] = v
	}

	tokenStore, err := store.OpenTokenStore(c.cfg.AccessTokenDBFilePath)
	if err != nil {
		return nil, newErr(KindStore, err, "open access token store")
	}
	defer tokenStore.Close()

	entryID, err := tokenStore.GetEntryID(ip)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, newErr(KindStore, err, "look up access token for %s", ip)
	}

	entry, err := tokenStore.GetEntry(entryID)
	if err != nil {
		return nil, newErr(KindStore, err, "read access token entry %d", entryID)
	}
	out["access_token"] = entry.AccessToken
	return out, nil
}

// dispatch validates and sends a request, classifying any failure into the
// Kind taxonomy. No store is touched here.
func (c *Client) dispatch(ctx context.Context, verb string, parameters map[string]any) (sanitize.Response, error) {
	if ok, _, errs := sanitize.MakeRequest(verb, parameters); !ok {
		return sanitize.Response{}, &Error{Kind: KindValidation, Message: "request document rejected", Cause: errs}
	}

	resp, err := c.transport.Do(ctx, verb, parameters)
	if err != nil {
		return sanitize.Response{}, classifyTransportError(err)
	}

	if !resp.Success {
		return resp, &Error{Kind: KindResponseFailure, Message: resp.Message}
	}
	return resp, nil
}

// classifyTransportError maps a transport-package error into the Kind
// taxonomy. transport cannot import this package (it would create a cycle),
// so this mapping lives here instead.
func classifyTransportError(err error) error {
	var stateErr *transport.StateError
	if errors.As(err, &stateErr) {
		return newErr(KindProtocol, err, "transport state violation")
	}
	var validationErr *transport.ValidationFailure
	if errors.As(err, &validationErr) {
		return &Error{Kind: KindValidation, Message: "response document rejected", Cause: validationErr.Errs}
	}
	var cryptoErr *transport.CryptoFailure
	if errors.As(err, &cryptoErr) {
		return newErr(KindCrypto, err, "transport crypto failure")
	}
	return newErr(KindTransport, err, "transport failure")
}

// storeCreateResult persists the session and container rows a successful
// CREATE response describes.
func (c *Client) storeCreateResult(ip string, port int, resp sanitize.Response) error {
	containerUUID, _ := resp.Data["container_uuid"].(string)
	clientToken, _ := resp.Data["client_token"].(string)
	username, _ := resp.Data["container_username"].(string)
	password, _ := resp.Data["container_password"].(string)
	listenPort := intFromResponse(resp.Data["container_listen_port"])

	now := time.Now().Unix()

	sessionStore, err := store.OpenSessionCredentialsStore(c.cfg.SessionCredentialsDBFilePath)
	if err != nil {
		return newErr(KindStore, err, "open session credentials store")
	}
	defer sessionStore.Close()
	if _, err := sessionStore.AddEntry(ip, port, containerUUID, clientToken, now); err != nil {
		return newErr(KindStore, err, "store session credentials entry")
	}

	containerStore, err := store.OpenContainerCredentialsStore(c.cfg.ContainerCredentialsDBFilePath)
	if err != nil {
		return newErr(KindStore, err, "open container credentials store")
	}
	defer containerStore.Close()
	if _, err := containerStore.AddEntry(ip, port, username, password, listenPort, now); err != nil {
		return newErr(KindStore, err, "store container credentials entry")
	}

	return nil
}

// deleteSessionAndContainer removes the caller-identified session row and,
// if present, the container row sharing its ServerIP.
func (c *Client) deleteSessionAndContainer(ip string, sessionEntryID int64) error {
	sessionStore, err := store.OpenSessionCredentialsStore(c.cfg.SessionCredentialsDBFilePath)
	if err != nil {
		return newErr(KindStore, err, "open session credentials store")
	}
	defer sessionStore.Close()

	sessionEntry, err := sessionStore.GetEntry(sessionEntryID)
	if errors.Is(err, store.ErrNotFound) {
		return newErr(KindLookup, err, "no session credentials entry %d", sessionEntryID)
	}
	if err != nil {
		return newErr(KindStore, err, "read session credentials entry %d", sessionEntryID)
	}
	if err := sessionStore.DeleteEntry(sessionEntryID); err != nil {
		return newErr(KindStore, err, "delete session credentials entry %d", sessionEntryID)
	}

	containerStore, err := store.OpenContainerCredentialsStore(c.cfg.ContainerCredentialsDBFilePath)
	if err != nil {
		return newErr(KindStore, err, "open container credentials store")
	}
	defer containerStore.Close()

	containerEntry, err := containerStore.GetEntryByServerIP(sessionEntry.ServerIP)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return newErr(KindStore, err, "look up container credentials entry for %s", sessionEntry.ServerIP)
	}
	if err := containerStore.DeleteEntry(containerEntry.EntryID); err != nil {
		return newErr(KindStore, err, "delete container credentials entry %d", containerEntry.EntryID)
	}
	return nil
}

func intFromResponse(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
