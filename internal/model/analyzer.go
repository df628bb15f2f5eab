package model

// Classifier defines the standard interface for a flow classifier.
type Classifier interface {
	// Classify returns the DDoS probability for a single feature vector.
	Classify(vec FeatureVector) (float64, error)

	// ClassifyBatch classifies vectors in order. The first failure aborts
	// the whole call.
	ClassifyBatch(vecs []FeatureVector) ([]float64, error)
}
