package domain

import "time"

// Settings holds pipeline configuration. Loaded from the TOML config
// store; zero values are replaced by DefaultSettings.
type Settings struct {
	// DataDir is the root directory for durable state.
	DataDir string `toml:"data_dir"`

	// Workers is the task pool size.
	Workers int `toml:"workers"`

	// QueueDepth bounds the in-memory ready queue. Enqueue blocks when
	// the queue is full, providing backpressure to submitters.
	QueueDepth int `toml:"queue_depth"`

	// MaxAttempts bounds task retries before permanent failure.
	MaxAttempts int `toml:"max_attempts"`

	// TaskDeadline is the per-attempt execution deadline.
	TaskDeadline time.Duration `toml:"task_deadline"`

	// RetryInitialDelay seeds the exponential retry backoff.
	RetryInitialDelay time.Duration `toml:"retry_initial_delay"`

	// RetryMaxDelay caps the exponential retry backoff.
	RetryMaxDelay time.Duration `toml:"retry_max_delay"`

	// IntakeRate limits Submit calls per second. Zero disables.
	IntakeRate float64 `toml:"intake_rate"`

	// IntakeBurst is the intake limiter burst size.
	IntakeBurst int `toml:"intake_burst"`

	// DedupCacheSize bounds the fingerprint cache entry count.
	DedupCacheSize int `toml:"dedup_cache_size"`

	// SimilarityThreshold is the advisory near-duplicate threshold in
	// [0, 1]. Exact fingerprint equality remains authoritative; this
	// only controls "possible duplicate" links.
	SimilarityThreshold float64 `toml:"similarity_threshold"`

	// MinTextLength is the rune count below which normalisation reports
	// insufficient text instead of guessing a language.
	MinTextLength int `toml:"min_text_length"`

	// MaxArchiveDepth caps nested archive expansion.
	MaxArchiveDepth int `toml:"max_archive_depth"`

	// OCRBinary is the external OCR engine executable.
	OCRBinary string `toml:"ocr_binary"`

	// OCRLanguages is passed to the OCR engine (e.g. "eng+rus").
	OCRLanguages string `toml:"ocr_languages"`

	// DictionaryPath is the entity dictionary YAML file. Watched for
	// changes when the worker runs.
	DictionaryPath string `toml:"dictionary_path"`

	// SweepInterval is how often the maintenance sweep runs.
	SweepInterval time.Duration `toml:"sweep_interval"`

	// SweepGracePeriod is how old a failed document must be before the
	// sweep retries it.
	SweepGracePeriod time.Duration `toml:"sweep_grace_period"`

	// SweepBatchLimit bounds resubmissions per sweep, avoiding
	// reprocessing storms.
	SweepBatchLimit int `toml:"sweep_batch_limit"`
}

// DefaultSettings returns sensible defaults for the pipeline.
func DefaultSettings() Settings {
	return Settings{
		Workers:             4,
		QueueDepth:          256,
		MaxAttempts:         5,
		TaskDeadline:        2 * time.Minute,
		RetryInitialDelay:   500 * time.Millisecond,
		RetryMaxDelay:       time.Minute,
		IntakeRate:          0,
		IntakeBurst:         64,
		DedupCacheSize:      10000,
		SimilarityThreshold: 0.92,
		MinTextLength:       24,
		MaxArchiveDepth:     3,
		OCRBinary:           "tesseract",
		OCRLanguages:        "eng",
		SweepInterval:       15 * time.Minute,
		SweepGracePeriod:    time.Hour,
		SweepBatchLimit:     100,
	}
}

// Normalised returns a copy with zero values replaced by defaults.
func (s Settings) Normalised() Settings {
	def := DefaultSettings()
	if s.Workers <= 0 {
		s.Workers = def.Workers
	}
	if s.QueueDepth <= 0 {
		s.QueueDepth = def.QueueDepth
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.TaskDeadline <= 0 {
		s.TaskDeadline = def.TaskDeadline
	}
	if s.RetryInitialDelay <= 0 {
		s.RetryInitialDelay = def.RetryInitialDelay
	}
	if s.RetryMaxDelay <= 0 {
		s.RetryMaxDelay = def.RetryMaxDelay
	}
	if s.IntakeBurst <= 0 {
		s.IntakeBurst = def.IntakeBurst
	}
	if s.DedupCacheSize <= 0 {
		s.DedupCacheSize = def.DedupCacheSize
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		s.SimilarityThreshold = def.SimilarityThreshold
	}
	if s.MinTextLength <= 0 {
		s.MinTextLength = def.MinTextLength
	}
	if s.MaxArchiveDepth <= 0 {
		s.MaxArchiveDepth = def.MaxArchiveDepth
	}
	if s.OCRBinary == "" {
		s.OCRBinary = def.OCRBinary
	}
	if s.OCRLanguages == "" {
		s.OCRLanguages = def.OCRLanguages
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = def.SweepInterval
	}
	if s.SweepGracePeriod <= 0 {
		s.SweepGracePeriod = def.SweepGracePeriod
	}
	if s.SweepBatchLimit <= 0 {
		s.SweepBatchLimit = def.SweepBatchLimit
	}
	return s
}
