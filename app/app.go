// Package app wires the alignment core to the Tk window.
package app

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"

	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/ui/presenter"
	"github.com/soocke/needle-align/ui/theme"
	"github.com/soocke/needle-align/ui/view"
)

const (
	uiTick      = 100 * time.Millisecond
	closeUpSize = 96
)

type app struct {
	c       *AppContainer
	width   int
	height  int
	afterID string
	cancel  context.CancelFunc

	rv      *view.RootView
	control *presenter.ControlPresenter
	speed   *presenter.SpeedPresenter
	preview *presenter.PreviewPresenter
	loop    *presenter.Loop
}

func NewApp(title string, width, height int, c *AppContainer) *app {
	a := &app{c: c, width: width, height: height}
	App.WmTitle(title)
	WmProtocol(App, "WM_DELETE_WINDOW", a.exitHandler)
	WmGeometry(App, fmt.Sprintf("%dx%d+100+100", width, height))
	return a
}

// Start builds the UI, starts the background loops and blocks in the Tk event loop.
func (a *app) Start() {
	c := a.c
	theme.InitStyles()
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.rv = view.NewRootView(c.Config, c.ConfigPath, c.Logger)
	a.control = presenter.NewControlPresenter(c.Controller, c.ROIs, a.rv, c.Config.MaxStepMagnitude, c.Logger)
	a.speed = presenter.NewSpeedPresenter(c.Scheduler, a.rv, c.Logger)
	a.rv.Build(view.Handlers{
		OnStart:    a.control.Start,
		OnAbort:    a.control.Abort,
		OnReset:    a.control.Reset,
		OnExit:     a.exitHandler,
		OnFaster:   a.speed.Faster,
		OnSlower:   a.speed.Slower,
		OnJog:      func(ch int, dir actuator.Direction) { a.control.Jog(ch, dir) },
		OnApplyROI: a.applyROI,
	})
	a.speed.Refresh()

	state := presenter.NewStatePresenter(a.rv, c.Attempts)
	c.Controller.AddListener(state.OnSnapshot)
	attempts := presenter.NewAttemptPresenter(c.Attempts, c.Controller, a.rv)
	a.preview = presenter.NewPreviewPresenter(c.Controller, a.rv, c.ROIs, closeUpSize, c.Logger)
	a.loop = presenter.NewLoop(state, attempts, a.control, a.preview, a.scheduleUpdate)

	if c.CaptureSvc != nil {
		c.CaptureSvc.Start()
	}
	if c.Serial != nil {
		go func() {
			if err := c.Serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.Error("serial monitor stopped", "error", err)
			}
		}()
	}
	go func() {
		if err := c.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Error("scheduler stopped", "error", err)
		}
	}()

	a.scheduleUpdate()
	App.Wait()
}

// applyROI hands r to the controller and saves it once accepted.
func (a *app) applyROI(r image.Rectangle) {
	a.control.ApplyROI(r)
	if a.c.ROIs.ROI() == r && a.rv.ROI != nil {
		a.rv.ROI.Persist(r)
	}
}

func (a *app) scheduleUpdate() {
	// TclAfter keeps updates on Tk's event loop thread
	a.afterID = TclAfter(uiTick, func() { a.loop.Tick() })
}

func (a *app) exitHandler() {
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.preview.Close()
	a.c.Close()
	Destroy(App)
}
