package bench

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// Progress reports iterations of a benchmark run.
type Progress interface {
	Describe(description string)
	Add(n int) error
	Finish() error
}

type ProgressFactory func(max int, description string) Progress

// NewProgressBar renders progress on stderr.
func NewProgressBar(max int, description string) Progress {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func NopProgress(int, string) Progress { return nopProgress{} }

type nopProgress struct{}

func (nopProgress) Describe(string) {}

func (nopProgress) Add(int) error { return nil }

func (nopProgress) Finish() error { return nil }
