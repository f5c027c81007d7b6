package models

// ChangeList is a flat list of proposed configuration changes, each entry a
// single-class object in the fabric's native JSON form.
type ChangeList []map[string]any

// SubmissionPayload is the body of a create request, built fresh at submit
// time. IMData is only set for manual (inline change list) submissions;
// file submissions carry the changes as a multipart file part instead.
type SubmissionPayload struct {
	AllowUnsupportedObjectModification string     `json:"allowUnsupportedObjectModification"`
	AnalysisSubmissionTime             int64      `json:"analysisSubmissionTime"`
	BaseEpochID                        string     `json:"baseEpochId"`
	BaseEpochCollectionTimestamp       int64      `json:"baseEpochCollectionTimestamp"`
	FabricUUID                         string     `json:"fabricUuid"`
	Description                        string     `json:"description"`
	Name                               string     `json:"name"`
	AssuranceEntityName                string     `json:"assuranceEntityName"`
	IMData                             ChangeList `json:"imdata,omitempty"`
}
