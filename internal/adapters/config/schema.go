package config

// Dvalfile represents the structure of the dval.yaml configuration file.
type Dvalfile struct {
	Version   string       `yaml:"version"`
	Dataset   DatasetDTO   `yaml:"dataset"`
	Utility   UtilityDTO   `yaml:"utility"`
	Valuation ValuationDTO `yaml:"valuation"`
	Execution ExecutionDTO `yaml:"execution"`
	Cache     CacheDTO     `yaml:"cache"`
}

// DatasetDTO represents the dataset section.
type DatasetDTO struct {
	Path         string  `yaml:"path"`
	LabelColumn  *int    `yaml:"label_column"`
	Header       bool    `yaml:"header"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
}

// UtilityDTO represents the utility section.
type UtilityDTO struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params"`
}

// HoeffdingDTO represents the valuation.hoeffding section.
type HoeffdingDTO struct {
	Epsilon float64 `yaml:"epsilon"`
	Delta   float64 `yaml:"delta"`
	Range   float64 `yaml:"range"`
}

// ValuationDTO represents the valuation section.
type ValuationDTO struct {
	Algorithm   string        `yaml:"algorithm"`
	Alpha       float64       `yaml:"alpha"`
	Beta        float64       `yaml:"beta"`
	Sampler     string        `yaml:"sampler"`
	Seed        uint64        `yaml:"seed"`
	Budget      int           `yaml:"budget"`
	Precision   float64       `yaml:"precision"`
	MinUpdates  int           `yaml:"min_updates"`
	MaxUpdates  int           `yaml:"max_updates"`
	MaxDuration string        `yaml:"max_duration"`
	Hoeffding   *HoeffdingDTO `yaml:"hoeffding"`
}

// ExecutionDTO represents the execution section.
type ExecutionDTO struct {
	Backend       string   `yaml:"backend"`
	NJobs         int      `yaml:"n_jobs"`
	QueueSize     int      `yaml:"queue_size"`
	Backpressure  string   `yaml:"backpressure"`
	ResultTimeout string   `yaml:"result_timeout"`
	RetryLimit    *int     `yaml:"retry_limit"`
	RetryBackoff  string   `yaml:"retry_backoff"`
	StrictErrors  bool     `yaml:"strict_errors"`
	Workers       []string `yaml:"workers"`
}

// CacheDTO represents the cache section.
type CacheDTO struct {
	Backend    string `yaml:"backend"`
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
	Path       string `yaml:"path"`
	Address    string `yaml:"address"`
	DSN        string `yaml:"dsn"`
	OpTimeout  string `yaml:"op_timeout"`
	Cooldown   string `yaml:"cooldown"`
}
