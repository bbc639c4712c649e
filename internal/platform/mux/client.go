package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
	"github.com/yungbote/vidstream-backend/internal/platform/httpx"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

// Upload is a direct-upload slot returned by the provider.
type Upload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Client interface {
	CreateUpload(ctx context.Context, passthrough string) (Upload, error)
}

type client struct {
	log         *logger.Logger
	baseURL     string
	tokenID     string
	tokenSecret string
	corsOrigin  string
	httpClient  *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	tokenID := envutil.String("MUX_TOKEN_ID", "")
	tokenSecret := envutil.String("MUX_TOKEN_SECRET", "")
	if tokenID == "" || tokenSecret == "" {
		return nil, fmt.Errorf("missing MUX_TOKEN_ID or MUX_TOKEN_SECRET")
	}
	return &client{
		log:         log.With("client", "MuxClient"),
		baseURL:     strings.TrimRight(envutil.String("MUX_BASE_URL", "https://api.mux.com"), "/"),
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		corsOrigin:  envutil.String("MUX_UPLOAD_CORS_ORIGIN", "*"),
		httpClient:  &http.Client{Timeout: envutil.Seconds("MUX_TIMEOUT_SECONDS", 30)},
	}, nil
}

type muxHTTPError struct {
	StatusCode int
	Body       string
}

func (e *muxHTTPError) Error() string       { return fmt.Sprintf("mux http %d: %s", e.StatusCode, e.Body) }
func (e *muxHTTPError) HTTPStatusCode() int { return e.StatusCode }

type createUploadRequest struct {
	CORSOrigin       string           `json:"cors_origin"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
}

type newAssetSettings struct {
	Passthrough    string       `json:"passthrough,omitempty"`
	PlaybackPolicy []string     `json:"playback_policy"`
	Input          []assetInput `json:"input,omitempty"`
}

type assetInput struct {
	GeneratedSubtitles []generatedSubtitle `json:"generated_subtitles"`
}

type generatedSubtitle struct {
	LanguageCode string `json:"language_code"`
	Name         string `json:"name"`
}

type createUploadResponse struct {
	Data Upload `json:"data"`
}

// CreateUpload requests a public-playback direct upload with English
// generated subtitles; passthrough carries the owner id.
func (c *client) CreateUpload(ctx context.Context, passthrough string) (Upload, error) {
	body := createUploadRequest{
		CORSOrigin: c.corsOrigin,
		NewAssetSettings: newAssetSettings{
			Passthrough:    passthrough,
			PlaybackPolicy: []string{"public"},
			Input: []assetInput{{
				GeneratedSubtitles: []generatedSubtitle{{LanguageCode: "en", Name: "English"}},
			}},
		},
	}
	var out createUploadResponse
	if err := c.post(ctx, "/video/v1/uploads", body, &out); err != nil {
		return Upload{}, err
	}
	if out.Data.ID == "" {
		return Upload{}, fmt.Errorf("mux create upload: empty upload id")
	}
	return out.Data, nil
}

func (c *client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.tokenID, c.tokenSecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				err = readErr
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				err = &muxHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
			default:
				return json.Unmarshal(raw, out)
			}
		}
		if attempt >= 2 || !httpx.IsRetryableError(err) {
			return err
		}
		c.log.Warn("Mux request retrying", "path", path, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(httpx.JitterSleep(backoff)):
		}
		backoff *= 2
	}
}
