package models

// Epoch is a finished network-state snapshot used as the comparison
// baseline for a pre-change validation.
type Epoch struct {
	EpochID             string `json:"epochId"`
	CollectionTimeMsecs int64  `json:"collectionTimeMsecs"`
	FabricID            string `json:"fabricId"`
}
