package model

// ItemResult is the unit of data passed between stages.
//
// Key is stable across stages and is the only thing used to correlate an
// item's results. A stage may rewrite Location (for example from a
// repository path to a local file, then to a generated report) but must
// keep Key.
type ItemResult struct {
	Key       string `json:"key"`
	Location  string `json:"location"`
	ParentKey string `json:"parentKey,omitempty"`
	Status    string `json:"status,omitempty"`
}

// StageOutput is the running value of a pipeline.
// The Items of stage N are the input of stage N+1.
type StageOutput struct {
	SubjectID     string       `json:"subjectId"`
	StatusMessage string       `json:"statusMessage"`
	Items         []ItemResult `json:"items"`
}

// EmptyOutput returns the sentinel value fed into the first stage.
func EmptyOutput() StageOutput {
	return StageOutput{Items: []ItemResult{}}
}

// Keys returns the item keys in order.
func (o StageOutput) Keys() []string {
	keys := make([]string, len(o.Items))
	for i, item := range o.Items {
		keys[i] = item.Key
	}
	return keys
}

// Item returns the item with the given key.
func (o StageOutput) Item(key string) (ItemResult, bool) {
	for _, item := range o.Items {
		if item.Key == key {
			return item, true
		}
	}
	return ItemResult{}, false
}
