package snapshot

import (
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ProgressReader tracks bytes read from an archive stream with a byte-rate
// progress bar. Used while unpacking a snapshot, where the compressed size
// is known up front.
type ProgressReader struct {
	reader io.Reader
	bar    *pb.ProgressBar
}

// NewProgressReader wraps r with a progress bar sized to the archive.
func NewProgressReader(r io.Reader, size int64, description string) *ProgressReader {
	tmpl := fmt.Sprintf(`{{ "%s" }} {{ bar . "[" "=" ">" " " "]"}} {{speed . }} {{percent . }} {{rtime . " ETA"}}`, description)

	bar := pb.New64(size)
	bar.Set(pb.SIBytesPrefix, true)
	bar.SetTemplateString(tmpl)
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Start()

	return &ProgressReader{
		reader: bar.NewProxyReader(r),
		bar:    bar,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	return pr.reader.Read(p)
}

// Close finishes the progress bar
func (pr *ProgressReader) Close() error {
	pr.bar.Finish()
	return nil
}

// Spinner shows activity for operations whose size is unknown, such as
// image exports and container startup.
type Spinner struct {
	bar *pb.ProgressBar
}

// NewSpinner starts a spinner labeled with description.
func NewSpinner(description string) *Spinner {
	tmpl := fmt.Sprintf(`{{ "%s" }} {{ cycle . "⠋" "⠙" "⠹" "⠸" "⠼" "⠴" "⠦" "⠧" "⠇" "⠏" }}`, description)

	spinner := pb.New(0)
	spinner.SetTemplateString(tmpl)
	spinner.SetRefreshRate(100 * time.Millisecond)
	spinner.Start()

	return &Spinner{bar: spinner}
}

// Stop stops the spinner
func (s *Spinner) Stop() {
	s.bar.Finish()
}
