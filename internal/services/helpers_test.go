package services

import "github.com/benmeehan/device-agent/internal/mocks"

func newDeviceInfo() *mocks.MockDeviceInfo {
	d := new(mocks.MockDeviceInfo)
	d.On("GetDeviceID").Return("dev-1")
	return d
}

// commandResponse is the decoded form of a published result record.
type commandResponse struct {
	ClientToken string `json:"clientToken"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exitCode"`
}
