package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the application
	Version = "0.3.0"

	// ArchiveFormatVersion is the newest resource archive format understood
	ArchiveFormatVersion = 1

	// APIVersion is the version of the HTTP and WebSocket contracts
	APIVersion = "v1"
)

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	ArchiveFormat int    `json:"archive_format"`
	APIVersion    string `json:"api_version"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:       Version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		ArchiveFormat: ArchiveFormatVersion,
		APIVersion:    APIVersion,
	}
}

// GetFullVersionString returns a detailed version string
func GetFullVersionString() string {
	info := GetVersionInfo()
	return fmt.Sprintf("langworker v%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		info.Version, info.BuildTime, info.GitCommit, info.GoVersion, info.OS, info.Architecture)
}
