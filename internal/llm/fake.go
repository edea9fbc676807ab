package llm

import "context"

// FakeClassifier is a deterministic Classifier for tests in other packages;
// it never makes a network call.
type FakeClassifier struct {
	Result Classification
	Err    error
}

func (f *FakeClassifier) Classify(_ context.Context, _ ClassifyInput) (Classification, error) {
	if f.Err != nil {
		return Classification{}, f.Err
	}
	return f.Result, nil
}
