package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/law-makers/sitewatch/internal/ui"
	"github.com/law-makers/sitewatch/pkg/models"
)

const bannerWidth = 50

// Console prints a banner for every change.
type Console struct {
	out   io.Writer
	color bool
	mu    sync.Mutex
}

// NewConsole writes banners to out, or stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out, color: ui.ColorEnabled(out)}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, change models.ChangeRecord) error {
	ts := change.DetectedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	banner := ui.Paint(c.color, ui.ColorYellow, strings.Repeat("!", bannerWidth))
	title := ui.Paint(c.color, ui.ColorBold, fmt.Sprintf("Change detected on %s!", change.SiteName))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s\n[%s] %s\nURL: %s\n%s\n%s\n\n",
		banner,
		ts.Format(time.DateTime),
		title,
		change.URL,
		change.NewContent,
		banner,
	)
	return err
}
