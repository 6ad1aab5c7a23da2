// Package status provides reconciliation channel status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for channel status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of a channel
	SaveStatus(ctx context.Context, channelName string, channelStatus *ChannelStatus) error

	// LoadStatus loads the status of a channel.
	// Returns an empty ChannelStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, channelName string) (*ChannelStatus, error)

	// LoadAllStatus loads the status of every channel that has one
	LoadAllStatus(ctx context.Context) (map[string]*ChannelStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the base directory where per-channel status files will be stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

func (f *fileStatusPersistence) channelDir(channelName string) (string, error) {
	if channelName == "" || channelName == "." || channelName == ".." ||
		strings.ContainsAny(channelName, `/\`) {
		return "", fmt.Errorf("invalid channel name '%s'", channelName)
	}
	return filepath.Join(f.basePath, channelName), nil
}

// SaveStatus writes the status as JSON in a channel-specific directory
func (f *fileStatusPersistence) SaveStatus(_ context.Context, channelName string, status *ChannelStatus) error {
	channelDir, err := f.channelDir(channelName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(channelDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for channel '%s': %w", channelName, err)
	}

	filePath := filepath.Join(channelDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for channel '%s': %w", channelName, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for channel '%s': %w", channelName, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for channel '%s': %w", channelName, err)
	}

	return nil
}

// LoadStatus reads the status file of a channel
func (f *fileStatusPersistence) LoadStatus(_ context.Context, channelName string) (*ChannelStatus, error) {
	channelDir, err := f.channelDir(channelName)
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(channelDir, StatusFileName)

	// #nosec G304 -- filePath is basePath plus a validated channel name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ChannelStatus{Name: channelName}, nil
		}
		return nil, fmt.Errorf("failed to read status file for channel '%s': %w", channelName, err)
	}

	var status ChannelStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for channel '%s': %w", channelName, err)
	}

	return &status, nil
}

// LoadAllStatus loads the status of every channel directory under the base path.
// Unreadable entries are skipped so one corrupt file does not hide the others.
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*ChannelStatus, error) {
	result := make(map[string]*ChannelStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		status, err := f.LoadStatus(ctx, entry.Name())
		if err != nil {
			continue
		}
		result[entry.Name()] = status
	}

	return result, nil
}
