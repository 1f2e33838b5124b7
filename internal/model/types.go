package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Genome struct {
	VersionedRecord
	ID              string    `json:"id"`
	Generation      int       `json:"generation"`
	Neurons         []Neuron  `json:"neurons"`
	Synapses        []Synapse `json:"synapses"`
	InputNeuronIDs  []string  `json:"input_neuron_ids"`
	OutputNeuronIDs []string  `json:"output_neuron_ids"`
}

type Neuron struct {
	ID         string  `json:"id"`
	Activation string  `json:"activation"`
	Bias       float64 `json:"bias"`
}

type Synapse struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Weight    float64 `json:"weight"`
	Enabled   bool    `json:"enabled"`
	Recurrent bool    `json:"recurrent"`
}

// RunRecord summarizes one evolution run on the flappy course.
type RunRecord struct {
	VersionedRecord
	ID               string  `json:"id"`
	Seed             int64   `json:"seed"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestScore        int     `json:"best_score"`
	StopReason       string  `json:"stop_reason"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	BestScore   int     `json:"best_score"`
	Ticks       int     `json:"ticks"`
	EndReason   string  `json:"end_reason"`
	CourseSeed  int64   `json:"course_seed"`
}

type TopGenomeRecord struct {
	Rank    int     `json:"rank"`
	Fitness float64 `json:"fitness"`
	Score   int     `json:"score"`
	Genome  Genome  `json:"genome"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID    string `json:"genome_id"`
	ParentID    string `json:"parent_id"`
	Generation  int    `json:"generation"`
	Operation   string `json:"operation"`
	Fingerprint string `json:"fingerprint"`
}
