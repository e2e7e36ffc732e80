package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/atinyakov/CoOrganizer/internal/codec"
	"github.com/atinyakov/CoOrganizer/internal/crypto"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
)

const (
	// ShareFieldName is the multipart field (and filename) carrying the payload.
	ShareFieldName = "rr"
	// DebugIDHeader carries the installation debug id on uploads.
	DebugIDHeader = "X-Debug-Id"

	maxShareResponse = 1 << 20
)

// ShareEndpoint builds the upload URL for a store reachable over plain HTTP.
func ShareEndpoint(host string, port int, path string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// ShareResult describes a completed upload.
type ShareResult struct {
	URL       string `json:"url"`
	Count     int    `json:"count"`
	Encrypted bool   `json:"encrypted"`
	GroupName string `json:"groupName,omitempty"`
	// Copied is false when the link could not be placed on the clipboard.
	Copied bool `json:"copied"`
}

// ShareUploader packs transactions into an envelope and uploads it to the store.
type ShareUploader struct {
	endpoint  string
	client    HTTPDoer
	engine    *crypto.Engine
	codec     *codec.Codec
	clipboard Clipboard
	notifier  Notifier
	debugID   *DebugID
	log       *zap.Logger
}

// ShareOption configures a ShareUploader.
type ShareOption func(*ShareUploader)

// WithShareClipboard sets where the resulting link is copied.
func WithShareClipboard(c Clipboard) ShareOption {
	return func(u *ShareUploader) { u.clipboard = c }
}

// WithNotifier sets who is told about the outcome of each share.
func WithNotifier(n Notifier) ShareOption {
	return func(u *ShareUploader) { u.notifier = n }
}

// WithDebugID sends the debug id header while it is enabled.
func WithDebugID(d *DebugID) ShareOption {
	return func(u *ShareUploader) { u.debugID = d }
}

// NewShareUploader creates an uploader posting to endpoint through client.
func NewShareUploader(endpoint string, client HTTPDoer, engine *crypto.Engine, log *zap.Logger, opts ...ShareOption) *ShareUploader {
	if log == nil {
		log = zap.NewNop()
	}
	u := &ShareUploader{
		endpoint:  endpoint,
		client:    client,
		engine:    engine,
		codec:     codec.New(log),
		clipboard: nopClipboard{},
		notifier:  nopNotifier{},
		log:       log,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Share uploads txs, encrypted for group when group is not nil, and copies
// the returned link to the clipboard. The notifier receives exactly one
// success or failure message per call.
func (u *ShareUploader) Share(ctx context.Context, txs []models.Transaction, group *models.Group) (ShareResult, error) {
	res, err := u.share(ctx, txs, group)
	if err != nil {
		u.log.Error("share failed", zap.Error(err), zap.Int("count", len(txs)))
		u.notifier.Failure("Share failed: " + describeShareError(err))
		return ShareResult{}, err
	}

	msg := "Sharing link copied to clipboard!"
	if !res.Copied {
		msg = "Sharing link created (clipboard unavailable): " + res.URL
	}
	if res.Encrypted {
		msg += " (encrypted for " + res.GroupName + ")"
	}
	u.log.Info("share successful", zap.Int("count", res.Count), zap.Bool("encrypted", res.Encrypted))
	u.notifier.Success(msg)
	return res, nil
}

func (u *ShareUploader) share(ctx context.Context, txs []models.Transaction, group *models.Group) (ShareResult, error) {
	if len(txs) == 0 {
		return ShareResult{}, ErrNothingToShare
	}

	data, err := u.codec.Encode(txs)
	if err != nil {
		return ShareResult{}, err
	}

	var env models.Envelope = models.PlainEnvelope{Data: string(data)}
	if group != nil {
		key, err := crypto.ParseKey(group.SymmetricKey)
		if err != nil {
			return ShareResult{}, fmt.Errorf("group %s: %w", group.Name, err)
		}
		blob, err := u.engine.Encrypt(data, key)
		if err != nil {
			return ShareResult{}, err
		}
		env = models.EncryptedEnvelope{Fingerprint: group.Fingerprint, Data: blob}
	}
	envJSON, err := models.MarshalEnvelope(env)
	if err != nil {
		return ShareResult{}, err
	}

	url, err := u.upload(ctx, base64.StdEncoding.EncodeToString(envJSON))
	if err != nil {
		return ShareResult{}, err
	}

	res := ShareResult{URL: url, Count: len(txs), Encrypted: group != nil, Copied: true}
	if group != nil {
		res.GroupName = group.Name
	}
	if err := u.clipboard.WriteAll(url); err != nil {
		u.log.Warn("failed to copy link to clipboard", zap.Error(err))
		res.Copied = false
	}
	return res, nil
}

func (u *ShareUploader) upload(ctx context.Context, payload string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition":       {fmt.Sprintf(`form-data; name=%q; filename=%q`, ShareFieldName, ShareFieldName)},
		"Content-Type":              {"application/octet-stream"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.WriteString(part, payload); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.debugID != nil && u.debugID.Enabled() {
		req.Header.Set(DebugIDHeader, u.debugID.Value())
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		u.log.Debug("upload rejected", zap.Int("status", resp.StatusCode))
		return "", &TransportError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxShareResponse))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	var sr models.ShareResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoShareURL, err)
	}
	if sr.HasError() {
		return "", &StoreError{Message: sr.Error}
	}
	if !sr.HasURL() {
		return "", ErrNoShareURL
	}
	return sr.URL, nil
}

func describeShareError(err error) string {
	var (
		terr *TransportError
		serr *StoreError
		cerr *crypto.CryptoError
	)
	switch {
	case errors.Is(err, ErrNothingToShare):
		return "No items selected"
	case errors.As(err, &terr):
		if terr.StatusCode != 0 {
			return "HTTP " + strconv.Itoa(terr.StatusCode)
		}
		return "Network error"
	case errors.As(err, &serr):
		return serr.Message
	case errors.Is(err, ErrNoShareURL):
		return ErrNoShareURL.Error()
	case errors.As(err, &cerr):
		return "Encryption error"
	default:
		return err.Error()
	}
}
