package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"CurateAI/internal/domain"
)

// Options is the flat set of effective pipeline options. Its canonical
// serialization feeds the run fingerprint, so two runs with identical
// options always compare equal on fingerprint.
type Options struct {
	LLMModel            string
	EmbeddingModel      string
	EmbeddingDimension  int
	SimilarityThreshold float64
	LookbackDays        int
	NearestK            int
	MaxBriefAngles      int
	Sources             []string
}

// Options flattens the loaded configuration into the effective option set.
func (c Config) Options() Options {
	sources := make([]string, 0, len(c.Sites))
	for _, site := range c.Sites {
		for _, cat := range site.Categories {
			sources = append(sources, site.Name+"/"+cat.Name)
		}
	}
	sort.Strings(sources)

	return Options{
		LLMModel:            c.LLM.Model,
		EmbeddingModel:      c.Embedding.Model,
		EmbeddingDimension:  c.Embedding.Dimension,
		SimilarityThreshold: c.Pipeline.SimilarityThreshold,
		LookbackDays:        c.Pipeline.LookbackDays,
		NearestK:            c.Pipeline.NearestK,
		MaxBriefAngles:      c.Pipeline.MaxBriefAngles,
		Sources:             sources,
	}
}

// Validate checks every option against its valid range. It fails fast
// with a ConfigError before any run record is created.
func (o Options) Validate() error {
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return &domain.ConfigError{Option: "similarityThreshold", Reason: fmt.Sprintf("must be in [0,1], got %v", o.SimilarityThreshold)}
	}
	if o.LookbackDays < 1 {
		return &domain.ConfigError{Option: "lookbackDays", Reason: fmt.Sprintf("must be >= 1, got %d", o.LookbackDays)}
	}
	if o.NearestK < 1 {
		return &domain.ConfigError{Option: "nearestK", Reason: fmt.Sprintf("must be >= 1, got %d", o.NearestK)}
	}
	if o.MaxBriefAngles < 1 {
		return &domain.ConfigError{Option: "maxBriefAngles", Reason: fmt.Sprintf("must be >= 1, got %d", o.MaxBriefAngles)}
	}
	if o.EmbeddingDimension < 1 {
		return &domain.ConfigError{Option: "embedding.dimension", Reason: fmt.Sprintf("must be >= 1, got %d", o.EmbeddingDimension)}
	}
	if o.EmbeddingModel == "" {
		return &domain.ConfigError{Option: "embedding.model", Reason: "is required"}
	}
	if o.LLMModel == "" {
		return &domain.ConfigError{Option: "llm.model", Reason: "is required"}
	}
	if len(o.Sources) == 0 {
		return &domain.ConfigError{Option: "sites", Reason: "at least one site category is required"}
	}
	return nil
}

// Fingerprint returns the deterministic hash of the canonically
// serialized options: sorted keys, normalized value formatting,
// SHA-256, first 16 hex characters.
func (o Options) Fingerprint() string {
	entries := o.canonical()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(entries[k])
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

func (o Options) canonical() map[string]string {
	return map[string]string{
		"llm_model":            o.LLMModel,
		"embedding_model":      o.EmbeddingModel,
		"embedding_dimension":  strconv.Itoa(o.EmbeddingDimension),
		"similarity_threshold": strconv.FormatFloat(o.SimilarityThreshold, 'f', -1, 64),
		"lookback_days":        strconv.Itoa(o.LookbackDays),
		"nearest_k":            strconv.Itoa(o.NearestK),
		"max_brief_angles":     strconv.Itoa(o.MaxBriefAngles),
		"sources":              strings.Join(o.Sources, ","),
	}
}
