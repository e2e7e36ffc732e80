package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/CoOrganizer/internal/codec"
	"github.com/atinyakov/CoOrganizer/internal/crypto"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
)

// Outcome is the verdict on one intercepted shared payload.
type Outcome int

const (
	// OutcomeError means the payload could not be read; the original
	// response is passed through untouched.
	OutcomeError Outcome = iota
	// OutcomeSuccess means the payload was decoded and its items forwarded.
	OutcomeSuccess
	// OutcomeUnauthorized means the payload is addressed to a group this
	// installation is not a member of.
	OutcomeUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "ERROR"
	}
}

// ErrUnknownGroup explains an unauthorized outcome.
var ErrUnknownGroup = errors.New("no group with this fingerprint")

// ImportResult reports what Process did with one payload.
type ImportResult struct {
	Outcome Outcome
	// Forwarded and Failed count sink calls.
	Forwarded int
	Failed    int
	// Skipped counts items the codec could not decode.
	Skipped int
	// Group is set for encrypted payloads that matched a group.
	Group *models.Group
	Err   error
}

// GroupLookup is the part of GroupStore the importer needs.
type GroupLookup interface {
	Refresh(ctx context.Context) error
	FindByFingerprint(fp models.Fingerprint) (models.Group, bool)
}

// Importer turns a downloaded shared payload into forwarded transactions.
type Importer struct {
	groups GroupLookup
	engine *crypto.Engine
	codec  *codec.Codec
	sink   Sink
	log    *zap.Logger
}

// NewImporter wires an importer.
func NewImporter(groups GroupLookup, engine *crypto.Engine, sink Sink, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{groups: groups, engine: engine, codec: codec.New(log), sink: sink, log: log}
}

func importError(err error) ImportResult {
	return ImportResult{Outcome: OutcomeError, Err: err}
}

// Process decodes body, checks membership, decrypts, decodes the
// transactions and forwards each to the sink. Membership is checked against
// a freshly reloaded group list and no decryption is attempted for unknown
// fingerprints.
func (im *Importer) Process(ctx context.Context, body []byte) ImportResult {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return importError(fmt.Errorf("decode payload: %w", err))
	}

	env, err := models.ParseEnvelope(raw)
	if err != nil {
		return importError(err)
	}

	var (
		plaintext []byte
		group     *models.Group
	)
	switch e := env.(type) {
	case models.EncryptedEnvelope:
		if err := im.groups.Refresh(ctx); err != nil {
			return importError(err)
		}
		g, ok := im.groups.FindByFingerprint(e.Fingerprint)
		if !ok {
			im.log.Info("shared item is for a group we are not a member of",
				zap.String("fingerprint", e.Fingerprint.String()))
			return ImportResult{Outcome: OutcomeUnauthorized, Err: fmt.Errorf("%w: %s", ErrUnknownGroup, e.Fingerprint)}
		}
		key, err := crypto.ParseKey(g.SymmetricKey)
		if err != nil {
			return importError(fmt.Errorf("group %s: %w", g.Name, err))
		}
		plaintext, err = im.engine.Decrypt(e.Data, key)
		if err != nil {
			im.log.Warn("shared item failed to decrypt", zap.String("group", g.Name), zap.Error(err))
			return importError(err)
		}
		group = &g
	case models.PlainEnvelope:
		plaintext = []byte(e.Data)
	default:
		return importError(fmt.Errorf("%w: unexpected variant %T", models.ErrInvalidEnvelope, env))
	}

	decoded, err := im.codec.Decode(plaintext)
	if err != nil {
		return importError(err)
	}

	res := ImportResult{Outcome: OutcomeSuccess, Skipped: decoded.Skipped, Group: group}
	for i, tx := range decoded.Transactions {
		if err := im.sink.Forward(ctx, tx); err != nil {
			im.log.Error("failed to forward shared item", zap.Int("index", i), zap.Error(err))
			res.Failed++
			continue
		}
		res.Forwarded++
	}
	im.log.Info("imported shared items",
		zap.Int("forwarded", res.Forwarded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res
}
