package node

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// progressReporter renders download progress either as a live terminal bar
// or, when stdout isn't a terminal (piped, redirected, CI), as periodic log
// lines carrying the percent complete and mean throughput (§4.3.7).
type progressReporter struct {
	bar        *progressbar.ProgressBar
	isTerminal bool
}

func newProgressReporter() *progressReporter {
	return &progressReporter{
		isTerminal: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// startProgressReporter lazily creates the bar once fileSize is known; it
// is a no-op if progress reporting was not requested.
func (n *Node) startProgressReporter() {
	if n.progress == nil || n.progress.bar != nil || !n.progress.isTerminal {
		return
	}
	n.progress.bar = progressbar.NewOptions64(n.fileSize,
		progressbar.OptionSetDescription(n.fileName),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionClearOnFinish(),
	)
}

// reportProgress recomputes bytesDone from the number of missing pieces
// rather than tracking downloaded bytes precisely. This intentionally
// undercounts while the final (possibly short) piece is still missing,
// since it assumes every missing piece is a full pieceSize — a known,
// deliberately-not-fixed approximation.
func (n *Node) reportProgress() {
	if !n.metadataKnown || n.progress == nil {
		return
	}
	bytesDone := n.fileSize - int64(len(n.missing))*n.pieceSize
	if bytesDone < 0 {
		bytesDone = 0
	}

	if n.progress.isTerminal && n.progress.bar != nil {
		n.progress.bar.Set64(bytesDone)
		return
	}

	var percent float64
	if n.fileSize > 0 {
		percent = float64(bytesDone) / float64(n.fileSize) * 100
	}

	var kbPerSec float64
	if elapsed := time.Since(n.startTime).Seconds(); elapsed > 0 {
		kbPerSec = float64(n.bytesDownloaded) / 1024 / elapsed
	}

	n.log.WithFields(logrus.Fields{
		"bytesDone": bytesDone,
		"fileSize":  n.fileSize,
		"missing":   len(n.missing),
		"percent":   round2(percent),
		"kbPerSec":  round2(kbPerSec),
	}).Info("progress")
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}

func (n *Node) stopProgressReporter() {
	if n.progress == nil || n.progress.bar == nil {
		return
	}
	n.progress.bar.Finish()
}
