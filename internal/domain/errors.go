package domain

import "fmt"

// ConfigError reports invalid or missing configuration. It is raised
// before a run record exists.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config option %q: %s", e.Option, e.Reason)
}

// ValidationError reports a stage input or output that violates the
// stage's declared schema. Field names the offending field.
type ValidationError struct {
	Stage  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %s: field %q: %s", e.Stage, e.Field, e.Reason)
}

// SequenceError reports a stage invoked before its declared
// predecessors completed. A caller contract violation, always fatal.
type SequenceError struct {
	Stage   string
	Missing string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("stage %s invoked before %s completed", e.Stage, e.Missing)
}

// EmbeddingServiceError wraps an upstream embedding failure. Skippable
// stages log the affected item and continue.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationServiceError wraps an upstream LLM failure.
type GenerationServiceError struct {
	Err error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service: %v", e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// PersistenceError wraps a store write failure. Always fatal: state
// downstream of a failed write cannot be trusted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
