package view

import (
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/needle-align/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// ROIPanel edits the region of interest. Apply hands the parsed rectangle to the
// controller; once accepted it is written back into the config file.
type ROIPanel interface {
	Build(parent *FrameWidget, startRow int) (endRow int)
	SetEditable(enabled bool)
	Persist(r image.Rectangle)
}

type roiPanel struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	onApply  func(image.Rectangle)
	applyBtn *ButtonWidget
	widgets  map[string]*TextWidget
}

func NewROIPanel(cfg *config.Config, cfgPath string, logger *slog.Logger, onApply func(image.Rectangle)) ROIPanel {
	return &roiPanel{cfg: cfg, cfgPath: cfgPath, logger: logger, onApply: onApply, widgets: make(map[string]*TextWidget)}
}

var roiFields = []struct{ id, label string }{
	{"x", "ROI X"},
	{"y", "ROI Y"},
	{"w", "ROI Width"},
	{"h", "ROI Height"},
}

func (v *roiPanel) Build(parent *FrameWidget, startRow int) (row int) {
	row = startRow
	values := map[string]int{"x": v.cfg.ROI.X, "y": v.cfg.ROI.Y, "w": v.cfg.ROI.W, "h": v.cfg.ROI.H}
	for _, f := range roiFields {
		lbl := Label(Txt(f.label), Anchor("w"))
		Grid(lbl, In(parent), Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(8))
		Grid(w, In(parent), Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Delete("1.0", END)
		w.Insert("1.0", fmt.Sprintf("%d", values[f.id]))
		v.widgets[f.id] = w
		row++
	}
	v.applyBtn = Button(Txt("Apply ROI"), Command(func() { v.apply() }))
	Grid(v.applyBtn, In(parent), Row(row), Column(0), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	row++
	return row
}

func (v *roiPanel) SetEditable(enabled bool) {
	state := "disabled"
	if enabled {
		state = "normal"
	}
	for _, w := range v.widgets {
		if w != nil {
			w.Configure(State(state))
		}
	}
	if v.applyBtn != nil {
		v.applyBtn.Configure(State(state))
	}
}

func (v *roiPanel) text(id string) string {
	w := v.widgets[id]
	if w == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(w.Get("1.0", END), ""))
}

func (v *roiPanel) apply() {
	vals := make(map[string]int, len(roiFields))
	for _, f := range roiFields {
		i, err := strconv.Atoi(v.text(f.id))
		if err != nil {
			if v.logger != nil {
				v.logger.Warn("roi field is not a number", "field", f.id, "error", err)
			}
			return
		}
		vals[f.id] = i
	}
	if v.onApply != nil {
		v.onApply(image.Rect(vals["x"], vals["y"], vals["x"]+vals["w"], vals["y"]+vals["h"]))
	}
}

// Persist stores r in the config and saves it.
func (v *roiPanel) Persist(r image.Rectangle) {
	if v.cfg == nil || r.Empty() {
		return
	}
	v.cfg.ROI = config.Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
		return
	}
	if v.logger != nil {
		v.logger.Info("config saved", "path", v.cfgPath)
	}
}
