package presenter

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/ui/model"
)

// MessageView shows one line of operator feedback.
type MessageView interface {
	SetMessage(text string)
}

// ControlPresenter forwards operator commands to the controller. Manual jogs wait
// for an acknowledgement, so they run off the UI thread; their results are shown on
// the next Tick.
type ControlPresenter struct {
	cmds   align.Commands
	rois   *model.ROIModel
	view   MessageView
	step   float64
	logger *slog.Logger

	mu       sync.Mutex
	messages []string
	jogging  sync.WaitGroup
}

// NewControlPresenter returns a presenter jogging by step per button press.
func NewControlPresenter(cmds align.Commands, rois *model.ROIModel, view MessageView, step float64, logger *slog.Logger) *ControlPresenter {
	return &ControlPresenter{cmds: cmds, rois: rois, view: view, step: step, logger: logger}
}

func (c *ControlPresenter) Start() {
	if c == nil || c.cmds == nil {
		return
	}
	if err := c.cmds.Start(); err != nil {
		c.report("start: %v", err)
		return
	}
	c.report("alignment started")
}

// Abort never fails; repeated presses are harmless.
func (c *ControlPresenter) Abort() {
	if c == nil || c.cmds == nil {
		return
	}
	c.cmds.Abort()
	c.report("abort requested")
}

func (c *ControlPresenter) Reset() {
	if c == nil || c.cmds == nil {
		return
	}
	if err := c.cmds.Reset(); err != nil {
		c.report("reset: %v", err)
		return
	}
	c.report("ready")
}

// ApplyROI validates r against the controller and stores it in the model on success.
func (c *ControlPresenter) ApplyROI(r image.Rectangle) {
	if c == nil || c.cmds == nil {
		return
	}
	if err := c.cmds.SetROI(r); err != nil {
		c.report("roi %v rejected: %v", r, err)
		return
	}
	c.rois.SetROI(r)
	c.report("roi set to %v", r)
}

// Jog moves channel one step in dir in the background.
func (c *ControlPresenter) Jog(channel int, dir actuator.Direction) {
	if c == nil || c.cmds == nil {
		return
	}
	c.jogging.Add(1)
	go func() {
		defer c.jogging.Done()
		res, err := c.cmds.ManualJog(channel, dir, c.step)
		switch {
		case errors.Is(err, align.ErrSessionActive):
			c.report("channel %d: manual jog not allowed during alignment", channel+1)
		case err != nil:
			c.report("channel %d: %v", channel+1, err)
		case res.Clamped:
			c.report("channel %d at travel limit (%.2f)", channel+1, res.Position)
		default:
			c.report("channel %d moved %+.2f to %.2f", channel+1, res.Applied, res.Position)
		}
	}()
}

// Wait blocks until background jogs have finished.
func (c *ControlPresenter) Wait() {
	if c == nil {
		return
	}
	c.jogging.Wait()
}

func (c *ControlPresenter) report(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.logger != nil {
		c.logger.Debug("operator feedback", "message", msg)
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// Tick flushes the newest message to the view.
func (c *ControlPresenter) Tick() {
	if c == nil || c.view == nil {
		return
	}
	c.mu.Lock()
	msgs := c.messages
	c.messages = nil
	c.mu.Unlock()
	if len(msgs) > 0 {
		c.view.SetMessage(msgs[len(msgs)-1])
	}
}
