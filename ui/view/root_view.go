package view

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// Handlers are the operator actions wired by the app.
type Handlers struct {
	OnStart    func()
	OnAbort    func()
	OnReset    func()
	OnExit     func()
	OnFaster   func()
	OnSlower   func()
	OnJog      func(channel int, dir actuator.Direction)
	OnApplyROI func(r image.Rectangle)
}

// RootView composes the top-level layout. It implements the presenter view
// contracts by forwarding to its subviews.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	Attempts AttemptStats
	Jogs     JogPanel
	ROI      ROIPanel
	Preview  Preview

	StateLabel   *LabelWidget
	StatusLabel  *LabelWidget
	MessageLabel *LabelWidget
	SpeedLabel   *LabelWidget
	startBtn     *ButtonWidget
	resetBtn     *ButtonWidget
}

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

// Build constructs the layout.
func (rv *RootView) Build(h Handlers) {
	if rv == nil {
		return
	}
	// Row 0: state, attempt stats and the command buttons
	rv.StateLabel = Label(Txt("State: idle"), Width(28), Foreground("white"), Background(theme.StateColor(align.StateIdle)), Relief("ridge"))
	Grid(rv.StateLabel, Row(0), Column(0), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	statsFrame := Frame()
	Grid(statsFrame, Row(0), Column(2), Columnspan(2), Sticky("w"))
	rv.Attempts = NewAttemptStats(statsFrame, 0, 0)

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(4), Rowspan(3), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	rv.startBtn = Button(Txt("Start"), Command(h.OnStart))
	abortBtn := Button(Txt("Abort"), Command(h.OnAbort))
	rv.resetBtn = Button(Txt("Reset"), Command(h.OnReset))
	exitBtn := Button(Txt("Exit"), Command(h.OnExit))
	for i, b := range []*ButtonWidget{rv.startBtn, abortBtn, rv.resetBtn, exitBtn} {
		Grid(b, In(btnFrame), Row(i), Column(0), Columnspan(2), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	}
	rv.SpeedLabel = Label(Txt("Speed: -"), Width(16))
	Grid(rv.SpeedLabel, In(btnFrame), Row(4), Column(0), Columnspan(2), Sticky("we"), Padx("0.2m"))
	Grid(Button(Txt("Slower"), Command(h.OnSlower)), In(btnFrame), Row(5), Column(0), Sticky("we"), Padx("0.2m"))
	Grid(Button(Txt("Faster"), Command(h.OnFaster)), In(btnFrame), Row(5), Column(1), Sticky("we"), Padx("0.2m"))

	// Row 1-2: status line and operator messages
	rv.StatusLabel = Label(Txt("Iterations: 0"), Anchor("w"))
	Grid(rv.StatusLabel, Row(1), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"))
	rv.MessageLabel = Label(Txt(""), Anchor("w"))
	Grid(rv.MessageLabel, Row(2), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"))

	// Row 3: jog buttons and the ROI form
	jogFrame := Frame(Borderwidth(1), Relief("groove"))
	Grid(jogFrame, Row(3), Column(0), Columnspan(3), Sticky("nw"), Padx("0.4m"), Pady("0.4m"))
	rv.Jogs = NewJogPanel(jogFrame, rv.cfg.ChannelCount, h.OnJog)
	roiFrame := Frame(Borderwidth(1), Relief("groove"))
	Grid(roiFrame, Row(3), Column(3), Columnspan(2), Sticky("ne"), Padx("0.4m"), Pady("0.4m"))
	rv.ROI = NewROIPanel(rv.cfg, rv.cfgPath, rv.logger, h.OnApplyROI)
	rv.ROI.Build(roiFrame, 0)

	// Row 4: preview
	rv.Preview = NewPreview(4)
}

// SetState updates the state label text and colour.
func (rv *RootView) SetState(s align.State, text string) {
	if rv == nil {
		return
	}
	if rv.StateLabel != nil {
		rv.StateLabel.Configure(Txt(text), Background(theme.StateColor(s)))
	}
	if rv.startBtn != nil {
		state := "normal"
		if s.Active() {
			state = "disabled"
		}
		rv.startBtn.Configure(State(state))
	}
	if rv.resetBtn != nil {
		state := "disabled"
		if s.Terminal() {
			state = "normal"
		}
		rv.resetBtn.Configure(State(state))
	}
}

func (rv *RootView) SetStatus(text string) {
	if rv != nil && rv.StatusLabel != nil {
		rv.StatusLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetMessage(text string) {
	if rv != nil && rv.MessageLabel != nil {
		rv.MessageLabel.Configure(Txt(text))
	}
}

func (rv *RootView) SetChannels(enabled, faulted []bool) {
	if rv != nil && rv.Jogs != nil {
		rv.Jogs.SetChannels(enabled, faulted)
	}
}

// SetManualEnabled gates the jog buttons and the ROI form.
func (rv *RootView) SetManualEnabled(enabled bool) {
	if rv == nil {
		return
	}
	if rv.Jogs != nil {
		rv.Jogs.SetManualEnabled(enabled)
	}
	if rv.ROI != nil {
		rv.ROI.SetEditable(enabled)
	}
}

func (rv *RootView) SetAttempt(attempt, total time.Duration, converged, failed int) {
	if rv != nil && rv.Attempts != nil {
		rv.Attempts.Set(attempt, total, converged, failed)
	}
}

func (rv *RootView) SetSpeed(level int, interval time.Duration) {
	if rv != nil && rv.SpeedLabel != nil {
		rv.SpeedLabel.Configure(Txt(fmt.Sprintf("Speed: %d (%v)", level, interval)))
	}
}

func (rv *RootView) UpdatePreview(img image.Image) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdateFrame(img)
	}
}

func (rv *RootView) UpdateCloseUp(img image.Image) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdateCloseUp(img)
	}
}
