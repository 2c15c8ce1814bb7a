package model

import "time"

// ArtifactRecord is what the search stage keeps for one selected artifact.
// A list of these is written to <artifactDir>/<spk>.json for later reference.
type ArtifactRecord struct {
	WorkUnitID   string    `json:"ait"`
	BuildCreated time.Time `json:"buildCreated"`
	DownloadPath string    `json:"downloadPath"`
	RepoURL      string    `json:"repoUrl"`
	SPK          string    `json:"spk"`
	FileKey      string    `json:"fileKey"`
}
