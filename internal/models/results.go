package models

// Results is the accuracy report of a completed run.
type Results struct {
	Accuracy           float64        `json:"accuracy"`
	TotalSamples       int            `json:"total_samples"`
	CorrectPredictions int            `json:"correct_predictions"`
	MeanCER            float64        `json:"mean_cer"`
	Details            []SampleResult `json:"details"`
}

// SampleResult records the outcome for one image, in dataset order.
type SampleResult struct {
	Filename    string  `json:"filename"`
	GroundTruth string  `json:"ground_truth"`
	Predicted   string  `json:"predicted"`
	Correct     bool    `json:"correct"`
	Confidence  float64 `json:"confidence"`
	CER         float64 `json:"cer"`
}

// Clone returns a deep copy of r. A nil receiver returns nil.
func (r *Results) Clone() *Results {
	if r == nil {
		return nil
	}
	out := *r
	out.Details = make([]SampleResult, len(r.Details))
	copy(out.Details, r.Details)
	return &out
}
