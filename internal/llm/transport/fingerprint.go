package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FingerprintVersion is mixed into every fingerprint; bump it when the
// normalization below changes so stale cache entries stop matching.
const FingerprintVersion = "esa-v1"

var (
	ErrModelRequired = errors.New("model is required")
	ErrKindRequired  = errors.New("kind is required")
)

// fingerprintInput is the normalized shape hashed by Fingerprint. Struct
// fields marshal in declaration order, so the encoding is stable.
type fingerprintInput struct {
	Version     string    `json:"v"`
	ModelID     string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int64     `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Fingerprint returns a SHA-256 hex digest identifying the logical request.
// Prompts are compared after whitespace normalization. Reasoning requests
// carry no system prompt, so they share one fingerprint across role keys.
func Fingerprint(req *Request) (string, error) {
	in := fingerprintInput{
		Version:     FingerprintVersion,
		ModelID:     strings.TrimSpace(req.ModelID),
		Kind:        req.Kind,
		Model:       strings.TrimSpace(req.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if in.Model == "" {
		return "", ErrModelRequired
	}
	if in.Kind == "" {
		return "", ErrKindRequired
	}
	for _, m := range req.Messages() {
		in.Messages = append(in.Messages, Message{Role: m.Role, Content: collapseSpace(m.Content)})
	}

	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encoding fingerprint input: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CacheKey builds the Redis key {prefix}{model}:{fingerprint}.
func CacheKey(prefix, modelID, fingerprint string) string {
	return prefix + modelID + ":" + fingerprint
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
