package models

// Analysis statuses reported by the Insights service. The vocabulary is
// open-ended; only COMPLETED and FAILED are terminal. Everything else
// (RUNNING, SCHEDULED, queued variants) means the analysis is still in flight.
const (
	AnalysisStatusCompleted = "COMPLETED"
	AnalysisStatusFailed    = "FAILED"
	AnalysisStatusRunning   = "RUNNING"
	AnalysisStatusScheduled = "SCHEDULED"
)

// PCVJob is the Insights service's representation of one pre-change
// validation job. Field names follow the service's camelCase wire format.
type PCVJob struct {
	JobID                        string `json:"jobId"`
	Name                         string `json:"name"`
	Description                  string `json:"description,omitempty"`
	AssuranceEntityName          string `json:"assuranceEntityName"`
	FabricUUID                   string `json:"fabricUuid,omitempty"`
	BaseEpochID                  string `json:"baseEpochId,omitempty"`
	BaseEpochCollectionTimestamp int64  `json:"baseEpochCollectionTimestamp,omitempty"`
	AnalysisSubmissionTime       int64  `json:"analysisSubmissionTime,omitempty"`
	AnalysisStatus               string `json:"analysisStatus"`
	UploadedFileName             string `json:"uploadedFileName,omitempty"`
}

// Terminal reports whether the job has reached a state after which the
// service will not change it again.
func (j *PCVJob) Terminal() bool {
	return j.AnalysisStatus == AnalysisStatusCompleted || j.AnalysisStatus == AnalysisStatusFailed
}
