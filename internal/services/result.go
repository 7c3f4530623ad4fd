package services

import (
	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/config"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/remote"
)

// StoreResult is the outcome of a write against one store.
type StoreResult struct {
	Success bool        `json:"success"`
	Skipped bool        `json:"skipped,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Driver  string      `json:"driver,omitempty"`

	err error
}

func succeeded() StoreResult { return StoreResult{Success: true} }

func skipped(reason string) StoreResult {
	return StoreResult{Skipped: true, Error: reason}
}

func failed(err error) StoreResult {
	return StoreResult{Error: apperr.Detail(err), Kind: apperr.KindOf(err), err: err}
}

// ReplaceResult reports each store separately. The remote outcome keeps the "mongo" key
// whatever the driver, for clients written against the original API.
type ReplaceResult struct {
	File  StoreResult   `json:"file"`
	Mongo StoreResult   `json:"mongo"`
	Saved models.Counts `json:"saved"`
}

// Data sources reported by Status.
const (
	SourceRemote = "remote"
	SourceFile   = "file"
)

// Status is the coordinator's view of both stores.
type Status struct {
	Mode   config.StorageMode `json:"mode"`
	Remote remote.Status      `json:"remote"`
	Source string             `json:"source"`
	Counts models.Counts      `json:"counts"`
	File   string             `json:"file,omitempty"`
}
