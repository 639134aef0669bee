package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	newReservationTitle = "New reservation"
	newReservationBody  = "A customer just placed a reservation."
	reservationPage     = "reservation"
)

// pushRequest is the FCM HTTP v1 send body.
type pushRequest struct {
	ValidateOnly bool        `json:"validate_only"`
	Message      pushMessage `json:"message"`
}

type pushMessage struct {
	Token        string           `json:"token"`
	Notification pushNotification `json:"notification"`
	Data         pushData         `json:"data"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type pushData struct {
	InitialPageName string `json:"initialPageName"`
}

// PushClient posts one message per device token to an FCM-compatible
// endpoint.
type PushClient struct {
	endpoint string
	http     *http.Client
	log      zerolog.Logger
	// at most this many requests in flight per call
	parallel int
}

func NewPushClient(endpoint string, timeout time.Duration, log zerolog.Logger) *PushClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PushClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "push").Logger(),
		parallel: 8,
	}
}

// SendNewReservationMessage reports true only when every token was
// accepted.
func (c *PushClient) SendNewReservationMessage(ctx context.Context, tokens []string) bool {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for _, tok := range tokens {
		g.Go(func() error {
			return c.send(ctx, tok)
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn().Err(err).Int("tokens", len(tokens)).Msg("push delivery failed")
		return false
	}
	c.log.Info().Int("tokens", len(tokens)).Msg("push delivered")
	return true
}

func (c *PushClient) send(ctx context.Context, token string) error {
	body, err := json.Marshal(pushRequest{
		Message: pushMessage{
			Token:        token,
			Notification: pushNotification{Title: newReservationTitle, Body: newReservationBody},
			Data:         pushData{InitialPageName: reservationPage},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push: unexpected status %d", resp.StatusCode)
	}
	return nil
}
