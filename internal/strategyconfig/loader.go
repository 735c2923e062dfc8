package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a strategy file and returns the parsed config with its raw bytes.
// The raw bytes are kept for decision snapshots.
func Load(path string) (*Config, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read strategy config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, raw, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, raw, nil
}

// Parse overlays YAML onto Default() and validates the result.
// Unknown keys fail; omitted sections keep their defaults; an empty document is the default strategy.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 오타 필드 즉시 실패
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode strategy config: %w", err)
	}

	// 여러 문서가 이어 붙은 파일은 거부
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode strategy config: expected a single YAML document")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Hash is the SHA-256 of cfg's JSON encoding.
// Config is built from structs only, so field order and therefore the hash are stable.
func Hash(cfg *Config) (string, error) {
	canonical, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("hash strategy config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// NewDecisionSnapshot records which strategy, code and data produced a decision.
// yamlData may be nil, in which case cfg is re-rendered.
func NewDecisionSnapshot(cfg *Config, yamlData []byte, gitCommit, dataSnapshotID string) (*DecisionSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	if yamlData == nil {
		if yamlData, err = Marshal(cfg); err != nil {
			return nil, fmt.Errorf("render strategy config: %w", err)
		}
	}

	return &DecisionSnapshot{
		ConfigHash:     hash,
		ConfigYAML:     string(yamlData),
		StrategyID:     cfg.Meta.StrategyID,
		GitCommit:      gitCommit,
		DataSnapshotID: dataSnapshotID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
