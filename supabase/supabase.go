package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	supa "github.com/nedpals/supabase-go"
)

const (
	defaultUploadTimeout = time.Second * 10
)

var ErrTimeout = errors.New("timed out")

// Client provides an interface onto the Supabase platform.
// It hides the underlying open source supabase library and adds reconnection and timeout logic.
type Client struct {
	url           string
	anonKey       string
	userKey       string
	schema        string
	uploadTimeout time.Duration

	mu              sync.Mutex
	subClient       *supa.Client // the raw client of the underlying supabase library we are using
	shouldReconnect bool         // when true, the subClient is 'dirty' and will be re-created next time a write call is made
	logger          *slog.Logger
}

// New returns a client for the Supabase instance at `url`. The connection is made lazily on the first upload.
func New(url, anonKey, userKey, schema string, uploadTimeout time.Duration) *Client {
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}
	return &Client{
		url:             url,
		anonKey:         anonKey,
		userKey:         userKey,
		schema:          schema,
		uploadTimeout:   uploadTimeout,
		shouldReconnect: true,
		logger:          slog.Default().With("host", url, "schema", schema),
	}
}

// Upload inserts `rows` into the given supabase table. `rows` is anything that encodes to a json array of records.
func (c *Client) Upload(table string, rows any) error {

	c.mu.Lock()
	c.reconnectIfNeccesary()
	subClient := c.subClient
	c.mu.Unlock()

	// The supabase client library doesn't have good timeout support, so here we wrap the call in a timeout
	errCh := make(chan error, 1)
	go func() {
		errCh <- subClient.DB.From(table).Insert(rows).Execute(nil)
	}()

	select {
	case <-time.After(c.uploadTimeout):
		c.setShouldReconnect()
		return fmt.Errorf("insert into '%s': %w", table, ErrTimeout)
	case err := <-errCh:
		if err != nil {
			c.setShouldReconnect()
			return fmt.Errorf("insert into '%s': %w", table, err)
		}
		return nil
	}
}

// createSubClient creates the open-source supabase library client for the host.
func (c *Client) createSubClient() {

	subClient := supa.CreateClient(c.url, c.anonKey)

	// The supabase client library doesn't have a fully featured interface, here we specify options directly by
	// adding headers to the postgrest requests.
	// Use the appropriate schema:
	if c.schema != "" {
		subClient.DB.AddHeader("Accept-Profile", c.schema)
		subClient.DB.AddHeader("Content-Profile", c.schema)
	}

	// Use a user JWT:
	if c.userKey != "" {
		subClient.DB.AddHeader("Authorization", fmt.Sprintf("Bearer %s", c.userKey))
	}

	c.subClient = subClient
}

// setShouldReconnect is called when there has been an error that should trigger a re-creation of the sub client.
func (c *Client) setShouldReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldReconnect = true
}

// reconnectIfNeccesary re-creates the sub client if there have been problems with the connection. The caller holds the
// lock.
func (c *Client) reconnectIfNeccesary() {
	if !c.shouldReconnect {
		return
	}

	c.createSubClient()
	c.shouldReconnect = false

	c.logger.Info("Created supabase client")
}
