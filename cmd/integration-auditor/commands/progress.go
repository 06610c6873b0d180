package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/catherinevee/integration-auditor/internal/ingest"
)

// progressThresholdBytes is the size above which reading integrations.csv
// gets a progress bar (SPEC_FULL.md §4.1: ambient UX, not a correctness
// concern, so the threshold is a plain constant rather than a flag).
const progressThresholdBytes = 1 << 20 // 1 MiB

// progressReader advances bar by every byte Read returns, mirroring the
// teacher's progressbar.NewOptions usage in internal/discovery's
// ProgressTracker.
type progressReader struct {
	r   io.Reader
	bar *progressbar.ProgressBar
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.bar.Add(n)
	}
	return n, err
}

// withIngestProgress wraps src.Integrations in a progress bar when it's a
// regular file larger than progressThresholdBytes.
func withIngestProgress(src ingest.Sources) ingest.Sources {
	f, ok := src.Integrations.(*os.File)
	if !ok {
		return src
	}
	info, err := f.Stat()
	if err != nil || info.Size() <= progressThresholdBytes {
		return src
	}

	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetDescription("reading integrations.csv"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)
	src.Integrations = &progressReader{r: f, bar: bar}
	return src
}
