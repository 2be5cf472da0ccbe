// Package agent provides the backend-agnostic agent session layer.
//
// model.go - Capability metadata (providers and models)
//
// This file contains:
// - Provider and Model descriptors used for capability discovery
// - ModelKey/SplitModelKey compound-key helpers
//
// A model's compound key is always "<providerID>:<modelID>". The delimiter
// and field split are part of the wire contract and must be preserved by
// every adapter.

package agent

import "strings"

// ModelKeySeparator joins provider and model ids into a compound key
const ModelKeySeparator = ":"

// ModelStatus is a model's lifecycle status
type ModelStatus string

const (
	ModelStatusAlpha      ModelStatus = "alpha"
	ModelStatusBeta       ModelStatus = "beta"
	ModelStatusStable     ModelStatus = "stable"
	ModelStatusDeprecated ModelStatus = "deprecated"
)

// Provider describes one model provider exposed by a backend
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Model describes one selectable model and its capabilities
type Model struct {
	// Key is the "<providerID>:<modelID>" compound key
	Key         string `json:"key"`
	ProviderID  string `json:"providerId"`
	ModelID     string `json:"modelId"`
	DisplayName string `json:"displayName"`

	ContextTokens int `json:"contextTokens"`
	OutputTokens  int `json:"outputTokens"`

	Cost ModelCost `json:"cost"`

	SupportsReasoning   bool `json:"supportsReasoning"`
	SupportsTemperature bool `json:"supportsTemperature"`
	SupportsAttachment  bool `json:"supportsAttachment"`
	SupportsToolCall    bool `json:"supportsToolCall"`

	Status ModelStatus `json:"status"`
}

// ModelCost is a per-million-token cost table
type ModelCost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead,omitempty"`
	CacheWrite float64 `json:"cacheWrite,omitempty"`
}

// ModelKey builds the compound key for a provider/model pair
func ModelKey(providerID, modelID string) string {
	return providerID + ModelKeySeparator + modelID
}

// SplitModelKey splits a compound key back into its provider and model ids.
// The split is on the first separator, so model ids may themselves contain
// the separator character. Returns ok=false when the key has no separator.
func SplitModelKey(key string) (providerID, modelID string, ok bool) {
	providerID, modelID, ok = strings.Cut(key, ModelKeySeparator)
	if !ok || providerID == "" || modelID == "" {
		return "", "", false
	}
	return providerID, modelID, true
}

// FindModel returns the model with the given compound key, if present
func FindModel(models []Model, key string) (Model, bool) {
	for _, m := range models {
		if m.Key == key {
			return m, true
		}
	}
	return Model{}, false
}
