package jobkind

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MetadataKey is the executor metadata key carrying the identity token.
const MetadataKey = "jobtrack-record"

// TokenVersion is the current identity token format.
const TokenVersion = 1

// Token is the minimal reference to a job record smuggled through executor metadata.
// It never carries mutable record state.
type Token struct {
	Version int    `json:"v"`
	ID      string `json:"id"`
	Kind    string `json:"kind"`
}

// Identity token errors. Callers treat all of them as an identity miss.
var (
	ErrNoToken          = errors.New("no identity token")
	ErrMalformedToken   = errors.New("malformed identity token")
	ErrUnsupportedToken = errors.New("unsupported identity token version")
)

// NewToken builds a token for the record with the given id and kind.
func NewToken(id, kind string) Token {
	return Token{Version: TokenVersion, ID: id, Kind: kind}
}

// Encode serialises the token.
func (t Token) Encode() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode identity token: %w", err)
	}
	return string(b), nil
}

// Metadata returns executor metadata carrying the token.
func (t Token) Metadata() (map[string]string, error) {
	enc, err := t.Encode()
	if err != nil {
		return nil, err
	}
	return map[string]string{MetadataKey: enc}, nil
}

// DecodeToken parses a serialised token.
func DecodeToken(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, ErrNoToken
	}
	var t Token
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if t.Version != TokenVersion {
		return Token{}, fmt.Errorf("%w: %d", ErrUnsupportedToken, t.Version)
	}
	if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Kind) == "" {
		return Token{}, fmt.Errorf("%w: missing id or kind", ErrMalformedToken)
	}
	return t, nil
}

// TokenFromMetadata extracts the token from executor metadata. nil metadata is a miss.
func TokenFromMetadata(md map[string]string) (Token, error) {
	if md == nil {
		return Token{}, ErrNoToken
	}
	raw, ok := md[MetadataKey]
	if !ok {
		return Token{}, ErrNoToken
	}
	return DecodeToken(raw)
}
