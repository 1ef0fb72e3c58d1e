package neuropacs

import (
	"fmt"
	"strconv"

	"npcs-desk/constants"
)

type jobStatus struct {
	Started  bool   `json:"started"`
	Finished bool   `json:"finished"`
	Failed   bool   `json:"failed"`
	Progress int    `json:"progress"`
	Info     string `json:"info"`
}

// FormatStatus renders a remote status the way it is shown and stored.
func FormatStatus(s jobStatus) string {
	switch {
	case s.Failed:
		return constants.StatusFailedPrefix + s.Info
	case s.Finished:
		return constants.StatusFinished
	case s.Started:
		info := s.Info
		if info == "" {
			info = "Initializing"
		}
		return fmt.Sprintf("%d%% - %s", s.Progress, info)
	}
	return strconv.Itoa(s.Progress)
}
