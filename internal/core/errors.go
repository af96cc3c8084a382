package core

import (
	"errors"
	"fmt"
)

// Operation tags every orchestrated gateway call.
type Operation string

const (
	OpListVoices        Operation = "listVoices"
	OpSynthesize        Operation = "synthesize"
	OpCloneVoice        Operation = "cloneVoice"
	OpRenameVoice       Operation = "renameVoice"
	OpDeleteVoice       Operation = "deleteVoice"
	OpFetchHistory      Operation = "fetchHistory"
	OpDeleteHistory     Operation = "deleteHistoryEntry"
	OpFetchHistoryAudio Operation = "fetchHistoryAudio"
)

// ValidationError reports bad local input. It is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}

	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// DeviceAccessError reports that the capture device is unavailable or denied.
type DeviceAccessError struct {
	Err error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

// DecodeError reports audio bytes that cannot be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RemoteOperationError reports a network failure, a non-success status or a
// malformed response. Status is zero when no HTTP response was received.
type RemoteOperationError struct {
	Op      Operation
	Status  int
	Message string
	Err     error
}

func (e *RemoteOperationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.Status, e.Message)
	}

	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// ProviderContractError reports a success response that lacks a required field.
type ProviderContractError struct {
	Op      Operation
	Message string
}

func (e *ProviderContractError) Error() string {
	return fmt.Sprintf("%s: provider contract violated: %s", e.Op, e.Message)
}

// StorageParseError reports corrupt persisted local state. It is recovered by
// falling back to an empty collection.
type StorageParseError struct {
	Key string
	Err error
}

func (e *StorageParseError) Error() string {
	return fmt.Sprintf("stored %q is unreadable: %v", e.Key, e.Err)
}

func (e *StorageParseError) Unwrap() error {
	return e.Err
}

// Notification is the user-visible form of a failure.
type Notification struct {
	Title       string
	Description string
	Err         error
}

// NotificationFor converts an error from any studio component into a
// notification with a short title.
func NotificationFor(err error) Notification {
	var (
		validationErr *ValidationError
		deviceErr     *DeviceAccessError
		decodeErr     *DecodeError
		remoteErr     *RemoteOperationError
		contractErr   *ProviderContractError
		storageErr    *StorageParseError
	)

	notification := Notification{Title: "Error", Description: err.Error(), Err: err}

	switch {
	case errors.As(err, &validationErr):
		notification.Title = "Invalid input"
		notification.Description = validationErr.Error()
	case errors.As(err, &deviceErr):
		notification.Title = "Microphone unavailable"
		notification.Description = "Could not access the microphone. Check device permissions."
	case errors.As(err, &decodeErr):
		notification.Title = "Playback failed"
		notification.Description = "The generated audio could not be decoded."
	case errors.As(err, &contractErr):
		notification.Title = "Unexpected response"
		notification.Description = contractErr.Message
	case errors.As(err, &remoteErr):
		notification.Title = "Request failed"
		notification.Description = remoteErr.Message
	case errors.As(err, &storageErr):
		notification.Title = "Local data reset"
		notification.Description = storageErr.Error()
	}

	return notification
}
