package notify

import (
	"context"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pantrysense/pantry-cli/internal/model"
)

const desktopTimeout = 5 * time.Second

// DesktopChannel shows alerts through the desktop notification daemon
// via notify-send.
type DesktopChannel struct {
	binary string
}

func NewDesktopChannel() *DesktopChannel {
	return &DesktopChannel{binary: "notify-send"}
}

func (c *DesktopChannel) Name() string { return "desktop" }

func (c *DesktopChannel) Send(ctx context.Context, alert model.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()

	urgency := "normal"
	if alert.Level == model.AlertLevelCritical {
		urgency = "critical"
	}

	cmd := exec.CommandContext(ctx, c.binary,
		"--urgency", urgency,
		"--app-name", "pantry",
		subject(alert),
		alert.Message,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return eris.Wrapf(err, "notify: notify-send failed: %s", string(out))
	}
	return nil
}
