// Package codec converts captured transactions to and from the shared wire
// document: a JSON array in which every leaf value is individually base64
// encoded so arbitrary bytes survive the text container.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
)

// ErrNoRequest marks an item that carries no usable request.
var ErrNoRequest = errors.New("item has no request")

// CodecError is returned when the document as a whole cannot be handled.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

type wireRequest struct {
	Method  models.Blob `json:"method"`
	URL     models.Blob `json:"url"`
	Headers models.Blob `json:"headers"`
	Body    models.Blob `json:"body"`
}

type wireResponse struct {
	StatusCode models.Blob `json:"statusCode"`
	Headers    models.Blob `json:"headers"`
	Body       models.Blob `json:"body"`
}

type wireAnnotations struct {
	Notes          models.Blob `json:"notes,omitempty"`
	HighlightColor models.Blob `json:"highlightColor,omitempty"`
}

type wireItem struct {
	Request     *wireRequest     `json:"request"`
	Response    *wireResponse    `json:"response"`
	Annotations *wireAnnotations `json:"annotations,omitempty"`
}

// DecodeResult holds the transactions recovered from a document and the
// number of items that had to be skipped.
type DecodeResult struct {
	Transactions []models.Transaction
	Skipped      int
}

// Codec encodes and decodes transaction documents. It keeps no state
// besides its logger and is safe for concurrent use.
type Codec struct {
	log *zap.Logger
}

// New returns a Codec logging skipped items to log. A nil logger is allowed.
func New(log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{log: log}
}

var defaultCodec = New(nil)

// Encode encodes txs with a silent Codec.
func Encode(txs []models.Transaction) ([]byte, error) {
	return defaultCodec.Encode(txs)
}

// Decode decodes data with a silent Codec.
func Decode(data []byte) (DecodeResult, error) {
	return defaultCodec.Decode(data)
}

// Encode renders txs as a JSON array. A missing response is written as
// status code "0" with empty headers and body; annotations are omitted
// when neither notes nor a colour are set.
func (c *Codec) Encode(txs []models.Transaction) ([]byte, error) {
	items := make([]wireItem, 0, len(txs))
	for _, tx := range txs {
		items = append(items, toWire(tx))
	}
	out, err := json.Marshal(items)
	if err != nil {
		return nil, &CodecError{Op: "encode", Err: err}
	}
	c.log.Debug("encoded transactions", zap.Int("count", len(items)))
	return out, nil
}

func toWire(tx models.Transaction) wireItem {
	item := wireItem{
		Request: &wireRequest{
			Method:  models.BlobFromString(tx.Request.Method),
			URL:     models.BlobFromString(tx.Request.URL),
			Headers: models.BlobFromString(tx.Request.Headers.String()),
			Body:    tx.Request.Body,
		},
		Response: &wireResponse{
			StatusCode: models.BlobFromString("0"),
			Headers:    models.Blob{},
			Body:       models.Blob{},
		},
	}
	if tx.HasResponse() {
		item.Response = &wireResponse{
			StatusCode: models.BlobFromString(strconv.Itoa(tx.Response.StatusCode)),
			Headers:    models.BlobFromString(tx.Response.Headers.String()),
			Body:       tx.Response.Body,
		}
	}
	if tx.Annotations != nil && !tx.Annotations.IsEmpty() {
		item.Annotations = &wireAnnotations{
			Notes:          models.BlobFromString(tx.Annotations.Notes),
			HighlightColor: models.BlobFromString(string(tx.Annotations.HighlightColor)),
		}
	}
	return item
}

// Decode parses a document produced by Encode. If the outer array cannot be
// parsed the result is empty and a *CodecError is returned. Items that fail
// individually are skipped and counted.
//
// Headers are rebuilt from their "Name: value" text form; lines without a
// colon are lost, so headers are not guaranteed to round-trip byte for byte.
func (c *Codec) Decode(data []byte) (DecodeResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecodeResult{}, &CodecError{Op: "decode", Err: err}
	}
	if raw == nil {
		return DecodeResult{}, &CodecError{Op: "decode", Err: errors.New("document is not an array")}
	}

	res := DecodeResult{Transactions: make([]models.Transaction, 0, len(raw))}
	for i, msg := range raw {
		tx, err := c.decodeItem(msg)
		if err != nil {
			c.log.Warn("skipping undecodable item", zap.Int("index", i), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	c.log.Debug("decoded transactions",
		zap.Int("count", len(res.Transactions)),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (c *Codec) decodeItem(msg json.RawMessage) (models.Transaction, error) {
	var item wireItem
	if err := json.Unmarshal(msg, &item); err != nil {
		return models.Transaction{}, err
	}
	if item.Request == nil {
		return models.Transaction{}, ErrNoRequest
	}
	method := item.Request.Method.String()
	if strings.TrimSpace(method) == "" || len(item.Request.URL) == 0 {
		return models.Transaction{}, fmt.Errorf("%w: method and url are required", ErrNoRequest)
	}

	tx := models.Transaction{
		Request: models.Request{
			Method:  method,
			URL:     item.Request.URL.String(),
			Headers: models.ParseHeaders(item.Request.Headers.String()),
			Body:    item.Request.Body,
		},
	}

	if item.Response != nil {
		code, err := strconv.Atoi(strings.TrimSpace(item.Response.StatusCode.String()))
		if err != nil {
			c.log.Debug("ignoring response with unreadable status code", zap.Error(err))
		} else if code > 0 {
			tx.Response = &models.Response{
				StatusCode: code,
				Headers:    models.ParseHeaders(item.Response.Headers.String()),
				Body:       item.Response.Body,
			}
		}
	}

	if a := item.Annotations; a != nil {
		ann := models.Annotations{Notes: a.Notes.String()}
		if color := strings.TrimSpace(a.HighlightColor.String()); color != "" {
			hc, err := models.ParseHighlightColor(color)
			if err != nil {
				c.log.Warn("dropping unknown highlight color", zap.String("color", color))
			} else {
				ann.HighlightColor = hc
			}
		}
		if !ann.IsEmpty() {
			tx.Annotations = &ann
		}
	}
	return tx, nil
}
