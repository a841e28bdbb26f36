// Package snapshot captures the full state of a compose-managed deployment
// (images, named volumes, configuration tree) into a single portable archive,
// and reconstructs an equivalent deployment from such an archive.
package snapshot

import (
	"errors"
	"fmt"
)

// SchemaVersion tags every archive; restore refuses archives written by an
// incompatible major schema.
const SchemaVersion = "1.0"

// Archive layout. These names are part of the on-disk format contract and
// must stay stable across releases.
const (
	ManifestFile      = "backup_info.json"
	ImageListFile     = "image_list.txt"
	VolumeListFile    = "volume_list.txt"
	RestoreScriptFile = "restore"
	ConfigDir         = "config"
	ImagesDir         = "images"
	VolumesDir        = "volumes"
)

// HostAddressKey is the single env file variable rewritten during restore.
// Its captured value points at the source host and is almost always wrong on
// the target.
const HostAddressKey = "HOST_IP"

var (
	ErrEnvironmentUnavailable = errors.New("container runtime or orchestrator unavailable")
	ErrArchiveCorrupt         = errors.New("snapshot archive is corrupt")
	ErrIncompatibleArchive    = errors.New("snapshot archive schema is not supported")
	ErrStartFailed            = errors.New("deployment failed to start")
)

// Warning records a non-fatal, per-artifact failure. A run that finishes with
// only warnings is a degraded but usable snapshot, and still reports success.
type Warning struct {
	Stage   string
	Subject string
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Subject, w.Reason)
}

// BackupResult summarizes a completed backup run.
type BackupResult struct {
	ArchivePath string
	Size        int64
	Images      int
	Volumes     int
	Warnings    []Warning
}

// RestoreResult reports the final stage a restore reached and the warnings
// collected along the way. Stage is StageDone on success.
type RestoreResult struct {
	Stage    Stage
	Warnings []Warning
}

// Stage identifies a step of the restore sequence. Stages run strictly in
// order and never overlap.
type Stage int

const (
	StageValidating Stage = iota
	StageExtracting
	StageConfiguring
	StageLoadingImages
	StageRestoringVolumes
	StageStarting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "VALIDATING"
	case StageExtracting:
		return "EXTRACTING"
	case StageConfiguring:
		return "CONFIGURING"
	case StageLoadingImages:
		return "LOADING_IMAGES"
	case StageRestoringVolumes:
		return "RESTORING_VOLUMES"
	case StageStarting:
		return "STARTING"
	case StageDone:
		return "DONE"
	case StageFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}
